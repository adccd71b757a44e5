// Package graph builds symbolic computation graphs for training models.
//
// A Graph is bound to one resolved compute device and assembled node by
// node: declare inputs and parameters, combine them with ops, then hand the
// finished graph to the execution backend. Only shapes flow at building
// time, no tensor data is touched, so building is cheap and fully checkable
// in tests.
//
// Errors are handled in a deferred way: the first error that happens while
// building is stored on the Graph and every later node constructor becomes
// a no-op returning an invalid node. Check Graph.Error once after the whole
// model is assembled instead of after every op.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/batikim09/marian-dev/devices"
)

// Graph under construction, bound to one compute device.
type Graph struct {
	name   string
	device devices.DeviceID
	err    error

	nodes      []*Node
	params     map[string]*Node
	paramOrder []*Node
	named      map[string]*Node
}

// New creates an empty graph bound to the given device. An empty name
// defaults to "graph".
func New(name string, device devices.DeviceID) *Graph {
	if name == "" {
		name = "graph"
	}
	return &Graph{
		name:   name,
		device: device,
		params: make(map[string]*Node),
		named:  make(map[string]*Node),
	}
}

// NewPerDevice creates one empty graph per device of a resolved plan, in
// plan order. The graph names carry the device ordinal, eg. "train:0".
func NewPerDevice(name string, plan []devices.DeviceID) []*Graph {
	if name == "" {
		name = "graph"
	}
	graphs := make([]*Graph, len(plan))
	for ordinal, device := range plan {
		graphs[ordinal] = New(fmt.Sprintf("%s:%d", name, ordinal), device)
	}
	return graphs
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Device this graph is built for.
func (g *Graph) Device() devices.DeviceID { return g.device }

// Error returns the first error that happened while building the graph, or
// nil. Node constructors become no-ops once an error is set, so checking
// once after the whole model is assembled is enough.
func (g *Graph) Error() error {
	if g == nil {
		return errors.New("the Graph is nil")
	}
	return g.err
}

// Ok reports whether no error happened while building the graph so far.
func (g *Graph) Ok() bool { return g != nil && g.err == nil }

// setError stores err if it is the first one and returns an invalid node
// for the failing constructor to hand back.
func (g *Graph) setError(err error) *Node {
	if g.Ok() {
		g.err = err
	}
	return g.invalidNode()
}

func (g *Graph) setErrorf(format string, args ...any) *Node {
	return g.setError(errors.Errorf(format, args...))
}

// invalidNode is what node constructors return once the graph has an error.
func (g *Graph) invalidNode() *Node {
	return &Node{graph: g, id: -1}
}

// NumNodes returns the number of nodes created so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns the graph's nodes in creation order.
func (g *Graph) Nodes() []*Node { return slices.Clone(g.nodes) }

// NumParameters returns the number of parameter nodes.
func (g *Graph) NumParameters() int { return len(g.paramOrder) }

// Parameters returns the parameter nodes in creation order.
func (g *Graph) Parameters() []*Node { return slices.Clone(g.paramOrder) }

// ParameterCount returns the total number of learnable scalars across all
// parameter nodes.
func (g *Graph) ParameterCount() int {
	count := 0
	for _, param := range g.paramOrder {
		count += param.shape.Size()
	}
	return count
}

// ParamByName returns the parameter registered under name, or nil.
func (g *Graph) ParamByName(name string) *Node {
	if g == nil {
		return nil
	}
	return g.params[name]
}

// ByName returns the node registered under name, either an input or a node
// marked with Named, or nil.
func (g *Graph) ByName(name string) *Node {
	if g == nil {
		return nil
	}
	return g.named[name]
}

// String implements the fmt.Stringer interface, listing every node.
func (g *Graph) String() string {
	if g == nil {
		return "Graph(nil)"
	}
	if g.err != nil {
		return fmt.Sprintf("Graph %q on %s: #ERROR: %v", g.name, g.device, g.err)
	}
	parts := []string{fmt.Sprintf("Graph %q on %s: %d nodes, %d parameters",
		g.name, g.device, len(g.nodes), g.NumParameters())}
	for ii, node := range g.nodes {
		parts = append(parts, fmt.Sprintf("#%d\t%s", ii, node))
	}
	return strings.Join(parts, "\n")
}
