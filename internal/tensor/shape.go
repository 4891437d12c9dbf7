package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxRank is the largest number of dimensions a Shape can hold.
const MaxRank = 8

var (
	// ErrRankOverflow is returned when a shape has more than MaxRank dimensions.
	ErrRankOverflow = errors.New("rank exceeds maximum")
	// ErrEmptyShape is returned when a shape has no dimensions.
	ErrEmptyShape = errors.New("shape has rank 0")
	// ErrSizeOverflow is returned when an element or byte count does not fit in an int.
	ErrSizeOverflow = errors.New("size overflows int")
)

// Shape represents the dimensions of a tensor or of a workgroup grid.
// Treat it as immutable: methods that change a dimension return a copy.
type Shape []int

// NewShape validates dims and returns them as a Shape.
// The input slice is copied.
func NewShape(dims ...int) (Shape, error) {
	if len(dims) == 0 {
		return nil, ErrEmptyShape
	}
	if len(dims) > MaxRank {
		return nil, fmt.Errorf("%w: %d > %d", ErrRankOverflow, len(dims), MaxRank)
	}
	for i, dim := range dims {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return Shape(dims).Clone(), nil
}

// MustShape is like NewShape but panics on invalid input.
func MustShape(dims ...int) Shape {
	s, err := NewShape(dims...)
	if err != nil {
		panic(fmt.Sprintf("tensor: MustShape%v: %v", dims, err))
	}
	return s
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Dim returns the size of dimension i.
func (s Shape) Dim(i int) int {
	return s[i]
}

// With returns a copy of s with dimension i set to v.
func (s Shape) With(i, v int) Shape {
	c := s.Clone()
	c[i] = v
	return c
}

// NumElements returns the total number of elements described by the shape.
// The product wraps for shapes that fail Validate.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape can back a device allocation
// (rank 1..MaxRank, all dimensions > 0, element count fits in an int).
func (s Shape) Validate() error {
	if len(s) == 0 {
		return ErrEmptyShape
	}
	if len(s) > MaxRank {
		return fmt.Errorf("%w: %d > %d", ErrRankOverflow, len(s), MaxRank)
	}
	n := 1
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
		if n > math.MaxInt/dim {
			return fmt.Errorf("%w: shape %v", ErrSizeOverflow, s)
		}
		n *= dim
	}
	return nil
}

// ByteSize returns the byte size of s elements of nt. s must be valid.
func (s Shape) ByteSize(nt NumType) (int, error) {
	n := s.NumElements()
	if n > math.MaxInt/nt.Size() {
		return 0, fmt.Errorf("%w: %v elements of %s", ErrSizeOverflow, s, nt)
	}
	return n * nt.Size(), nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = fmt.Sprint(dim)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// CDiv returns ceil(total / group), the number of groups of size group
// needed to cover total items. Panics if group <= 0.
func CDiv(total, group int) int {
	if group <= 0 {
		panic(fmt.Sprintf("tensor: CDiv: group size must be > 0, got %d", group))
	}
	return (total + group - 1) / group
}

// Grid1D returns the 3-D workgroup grid {CDiv(total, workgroupSize), 1, 1}.
func Grid1D(total, workgroupSize int) Shape {
	return Shape{CDiv(total, workgroupSize), 1, 1}
}
