// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gpurt/internal/tensor"
)

// Type aliases for public API

// Shape represents the dimensions of a tensor or of a dispatch grid.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// NumType represents the element type of a device tensor.
type NumType = tensor.NumType

// Element is a constraint for host slices that can be copied to and from
// device tensors.
type Element = tensor.Element

// Element type constants.
const (
	F32 NumType = tensor.F32
	F16 NumType = tensor.F16
	I32 NumType = tensor.I32
	U32 NumType = tensor.U32
)

// MaxRank is the largest number of dimensions a Shape can hold.
const MaxRank = tensor.MaxRank

// Shape errors.
var (
	ErrRankOverflow = tensor.ErrRankOverflow
	ErrEmptyShape   = tensor.ErrEmptyShape
	ErrSizeOverflow = tensor.ErrSizeOverflow
)

// NewShape validates dims and returns them as a Shape.
func NewShape(dims ...int) (Shape, error) {
	return tensor.NewShape(dims...)
}

// MustShape is like NewShape but panics on invalid input.
func MustShape(dims ...int) Shape {
	return tensor.MustShape(dims...)
}

// CDiv returns ceil(total / group). It panics if group <= 0.
//
// Example:
//
//	tensor.CDiv(10000, 256) // 40 workgroups
func CDiv(total, group int) int {
	return tensor.CDiv(total, group)
}

// Grid1D returns the grid {CDiv(total, workgroupSize), 1, 1}.
func Grid1D(total, workgroupSize int) Shape {
	return tensor.Grid1D(total, workgroupSize)
}

// ParseNumType parses a WGSL scalar name such as "f32".
func ParseNumType(s string) (NumType, error) {
	return tensor.ParseNumType(s)
}

// TypeOf returns the NumType of the Go element type T.
func TypeOf[T Element]() NumType {
	return tensor.TypeOf[T]()
}
