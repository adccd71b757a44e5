package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// BatchDim marks a dimension whose size is only known at execution time,
// usually the batch axis.
const BatchDim = -1

// Shape lists the dimensions of a node's output. Every dimension is either
// positive or BatchDim.
type Shape []int

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape { return slices.Clone(s) }

// Eq reports whether s and other have the same dimensions.
func (s Shape) Eq(other Shape) bool { return slices.Equal(s, other) }

// Size returns the number of elements a value of this shape holds, or -1
// when the shape has a batch dimension.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s {
		if dim == BatchDim {
			return -1
		}
		size *= dim
	}
	return size
}

// String implements the fmt.Stringer interface, eg. "[batch, 784]".
func (s Shape) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, dim := range s {
		if i > 0 {
			sb.WriteString(", ")
		}
		if dim == BatchDim {
			sb.WriteString("batch")
		} else {
			_, _ = fmt.Fprintf(&sb, "%d", dim)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// validateDims checks that dims form a valid shape for a graph leaf.
func validateDims(dims []int) error {
	if len(dims) == 0 {
		return errors.New("shape needs at least one dimension")
	}
	for i, dim := range dims {
		if dim <= 0 && dim != BatchDim {
			return errors.Errorf("dimension %d must be positive or BatchDim, got %d", i, dim)
		}
	}
	return nil
}
