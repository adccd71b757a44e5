// Package models assembles standard model architectures on top of the
// graph package.
package models

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/batikim09/marian-dev/graph"
	"github.com/batikim09/marian-dev/internal/xslices"
)

// FeedforwardClassifier builds a multi-layer feed-forward classifier on g.
//
// dims lists the layer widths from the input features to the output
// classes, eg. 784, 2048, 2048, 10 for MNIST. The graph gets the inputs
// "x" and "y" (one-hot labels), per-layer parameters "W<i>" and "b<i>",
// and the named nodes "scores" and "cost". The returned node is the cost,
// the mean cross entropy over the batch.
func FeedforwardClassifier(g *graph.Graph, dims ...int) (*graph.Node, error) {
	if err := g.Error(); err != nil {
		return nil, errors.WithMessage(err, "building feed-forward classifier")
	}
	if len(dims) < 2 {
		return nil, errors.Errorf("a classifier needs at least input and output widths, got %d dimensions", len(dims))
	}
	for i, dim := range dims {
		if dim <= 0 {
			return nil, errors.Errorf("layer width %d must be positive, got %d", i, dim)
		}
	}
	klog.V(1).Infof("building feed-forward classifier on %s, layer dimensions %v", g.Device(), dims)

	x := g.Input("x", graph.BatchDim, dims[0])
	y := g.Input("y", graph.BatchDim, xslices.Last(dims))

	var layers, weights, biases []*graph.Node
	for i := 0; i+1 < len(dims); i++ {
		in, out := dims[i], dims[i+1]
		if i == 0 {
			layers = append(layers, graph.Dropout(x, 0.2))
		} else {
			hidden := graph.Relu(graph.Add(
				graph.Dot(xslices.Last(layers), xslices.Last(weights)), xslices.Last(biases)))
			layers = append(layers, graph.Dropout(hidden, 0.5))
		}
		weights = append(weights, g.Param(fmt.Sprintf("W%d", i), in, out))
		biases = append(biases, g.Param(fmt.Sprintf("b%d", i), 1, out))
	}

	scores := graph.Add(
		graph.Dot(xslices.Last(layers), xslices.Last(weights)), xslices.Last(biases)).Named("scores")
	cost := graph.Mean(graph.CrossEntropy(scores, y)).Named("cost")

	if err := g.Error(); err != nil {
		return nil, errors.WithMessage(err, "building feed-forward classifier")
	}
	return cost, nil
}
