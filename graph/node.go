package graph

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OpType identifies the operation a node performs.
type OpType int

const (
	OpInvalid OpType = iota
	OpInput
	OpParam
	OpDot
	OpAdd
	OpRelu
	OpDropout
	OpCrossEntropy
	OpMean
)

var opNames = [...]string{
	"Invalid", "Input", "Param", "Dot", "Add", "Relu", "Dropout", "CrossEntropy", "Mean",
}

// String implements the fmt.Stringer interface.
func (op OpType) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("OpType(%d)", int(op))
	}
	return opNames[op]
}

// Node is the result of one operation in a Graph. Its shape is fixed at
// creation, so shape mistakes surface while building, not when running.
type Node struct {
	graph  *Graph
	id     int
	op     OpType
	shape  Shape
	inputs []*Node
	name   string

	// rate is the dropout probability, set for OpDropout nodes only.
	rate float64
}

// Graph that holds this node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id of the node within its graph, in creation order.
func (n *Node) Id() int {
	if n == nil {
		return -1
	}
	return n.id
}

// Op performed by the node.
func (n *Node) Op() OpType {
	if n == nil {
		return OpInvalid
	}
	return n.op
}

// Shape of the node's output. It returns a copy.
func (n *Node) Shape() Shape {
	if n == nil {
		return nil
	}
	return n.shape.Clone()
}

// Rank of the node's shape.
func (n *Node) Rank() int {
	if n == nil {
		return 0
	}
	return n.shape.Rank()
}

// Name the node was registered under, or empty.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	return n.name
}

// Inputs returns the nodes this node consumes. It returns a copy.
func (n *Node) Inputs() []*Node {
	if n == nil {
		return nil
	}
	inputs := make([]*Node, len(n.inputs))
	copy(inputs, n.inputs)
	return inputs
}

// Rate returns the dropout probability for OpDropout nodes, 0 otherwise.
func (n *Node) Rate() float64 {
	if n == nil {
		return 0
	}
	return n.rate
}

// Valid reports whether the node was successfully created. Constructors
// return invalid nodes once their graph carries an error.
func (n *Node) Valid() bool {
	return n != nil && n.op != OpInvalid
}

// Named registers the node in its graph under the given name, for later
// retrieval with Graph.ByName, and returns the node so model builders can
// mark the interesting ones inline, eg. "scores" or "cost". An empty or
// already taken name records an error on the graph and yields an invalid
// node.
func (n *Node) Named(name string) *Node {
	if !n.Valid() || !n.graph.Ok() {
		return n
	}
	if name == "" {
		return n.graph.setErrorf("node name cannot be empty")
	}
	if _, found := n.graph.named[name]; found {
		return n.graph.setErrorf("node name %q is already taken", name)
	}
	n.name = name
	n.graph.named[name] = n
	return n
}

// String implements the fmt.Stringer interface, eg. `Input "x" -> [batch, 784]`.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	if !n.Valid() {
		return "InvalidNode"
	}
	var sb strings.Builder
	sb.WriteString(n.op.String())
	if n.op == OpDropout {
		_, _ = fmt.Fprintf(&sb, "(%g)", n.rate)
	}
	if n.name != "" {
		_, _ = fmt.Fprintf(&sb, " %q", n.name)
	}
	_, _ = fmt.Fprintf(&sb, " -> %s", n.shape)
	return sb.String()
}

// newNode registers a node in the graph, assigning it the next id.
func (g *Graph) newNode(op OpType, shape Shape, inputs ...*Node) *Node {
	node := &Node{graph: g, id: len(g.nodes), op: op, shape: shape, inputs: inputs}
	g.nodes = append(g.nodes, node)
	return node
}

// Input declares a named graph input of the given dimensions. Use BatchDim
// for the dimension only known at execution time. Input names share the
// namespace of Named and must be unique.
func (g *Graph) Input(name string, dims ...int) *Node {
	if !g.Ok() {
		return g.invalidNode()
	}
	if name == "" {
		return g.setErrorf("input needs a name")
	}
	if _, found := g.named[name]; found {
		return g.setErrorf("node name %q is already taken", name)
	}
	if err := validateDims(dims); err != nil {
		return g.setError(errors.WithMessagef(err, "input %q", name))
	}
	node := g.newNode(OpInput, Shape(dims).Clone())
	node.name = name
	g.named[name] = node
	return node
}

// Param declares a learnable parameter with all dimensions fixed.
// Parameter names are unique within the graph.
func (g *Graph) Param(name string, dims ...int) *Node {
	if !g.Ok() {
		return g.invalidNode()
	}
	if name == "" {
		return g.setErrorf("parameter needs a name")
	}
	if _, found := g.params[name]; found {
		return g.setErrorf("parameter %q already exists", name)
	}
	if err := validateDims(dims); err != nil {
		return g.setError(errors.WithMessagef(err, "parameter %q", name))
	}
	for i, dim := range dims {
		if dim == BatchDim {
			return g.setErrorf("parameter %q dimension %d cannot be BatchDim, parameters have fixed shapes", name, i)
		}
	}
	node := g.newNode(OpParam, Shape(dims).Clone())
	node.name = name
	g.params[name] = node
	g.paramOrder = append(g.paramOrder, node)
	return node
}

// buildingGraph returns the common graph of the given op inputs, or nil if
// any input is nil. Mixing nodes of two graphs sets an error on the first
// one.
func buildingGraph(inputs ...*Node) *Graph {
	var g *Graph
	for _, input := range inputs {
		if input == nil || input.graph == nil {
			return nil
		}
		if g == nil {
			g = input.graph
		} else if input.graph != g {
			g.setErrorf("op mixes nodes from graphs %q and %q", g.name, input.graph.name)
			return g
		}
	}
	return g
}

// Dot returns the matrix product of lhs and rhs: lhs is [m, k] with m
// positive or BatchDim, rhs is [k, n], the result is [m, n].
func Dot(lhs, rhs *Node) *Node {
	g := buildingGraph(lhs, rhs)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	if lhs.Rank() != 2 || rhs.Rank() != 2 {
		return g.setErrorf("Dot needs two rank-2 nodes, got %s and %s", lhs.shape, rhs.shape)
	}
	if rhs.shape[0] == BatchDim {
		return g.setErrorf("Dot right-hand side cannot have a batch dimension, got %s", rhs.shape)
	}
	if lhs.shape[1] != rhs.shape[0] {
		return g.setErrorf("cannot Dot %s by %s, inner dimensions differ", lhs.shape, rhs.shape)
	}
	return g.newNode(OpDot, Shape{lhs.shape[0], rhs.shape[1]}, lhs, rhs)
}

// Add returns lhs+rhs element-wise. rhs may also be a [1, n] bias row that
// broadcasts over the rows of a rank-2 lhs.
func Add(lhs, rhs *Node) *Node {
	g := buildingGraph(lhs, rhs)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	switch {
	case lhs.shape.Eq(rhs.shape):
	case lhs.Rank() == 2 && rhs.Rank() == 2 && rhs.shape[0] == 1 && rhs.shape[1] == lhs.shape[1]:
	default:
		return g.setErrorf("cannot Add %s and %s", lhs.shape, rhs.shape)
	}
	return g.newNode(OpAdd, lhs.shape.Clone(), lhs, rhs)
}

// Relu returns max(x, 0) element-wise.
func Relu(x *Node) *Node {
	g := buildingGraph(x)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	return g.newNode(OpRelu, x.shape.Clone(), x)
}

// Dropout zeroes elements of x with the given probability during training.
// The rate must be in [0, 1).
func Dropout(x *Node, rate float64) *Node {
	g := buildingGraph(x)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	if rate < 0 || rate >= 1 {
		return g.setErrorf("dropout rate must be in [0, 1), got %g", rate)
	}
	node := g.newNode(OpDropout, x.shape.Clone(), x)
	node.rate = rate
	return node
}

// CrossEntropy returns the per-example cross entropy between scores and the
// one-hot labels, a [m, 1] column for rank-2 inputs of equal shape. The raw
// scores are normalized with a softmax internally, so the node consumes
// unnormalized outputs directly.
func CrossEntropy(scores, labels *Node) *Node {
	g := buildingGraph(scores, labels)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	if scores.Rank() != 2 || !scores.shape.Eq(labels.shape) {
		return g.setErrorf("CrossEntropy needs scores and labels of one equal rank-2 shape, got %s and %s",
			scores.shape, labels.shape)
	}
	return g.newNode(OpCrossEntropy, Shape{scores.shape[0], 1}, scores, labels)
}

// Mean averages x over its first axis, keeping the axis with size 1.
func Mean(x *Node) *Node {
	g := buildingGraph(x)
	if g == nil {
		return nil
	}
	if !g.Ok() {
		return g.invalidNode()
	}
	if x.Rank() < 1 {
		return g.setErrorf("Mean needs at least one axis, got %s", x.shape)
	}
	shape := x.shape.Clone()
	shape[0] = 1
	return g.newNode(OpMean, shape, x)
}
