// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"errors"
	"testing"

	"github.com/x448/float16"

	"github.com/born-ml/gpurt/tensor"
)

// TestShapeAPI verifies the Shape alias exposes the expected API.
func TestShapeAPI(t *testing.T) {
	s, err := tensor.NewShape(2, 3, 4)
	if err != nil {
		t.Fatalf("NewShape failed: %v", err)
	}
	if s.Rank() != 3 {
		t.Errorf("Rank() = %d, want 3", s.Rank())
	}
	if s.NumElements() != 24 {
		t.Errorf("NumElements() = %d, want 24", s.NumElements())
	}
	if !s.Equal(tensor.Shape{2, 3, 4}) {
		t.Errorf("Equal failed for %v", s)
	}

	if _, err := tensor.NewShape(1, 1, 1, 1, 1, 1, 1, 1, 1); !errors.Is(err, tensor.ErrRankOverflow) {
		t.Errorf("NewShape rank 9: got %v, want ErrRankOverflow", err)
	}
	if _, err := tensor.NewShape(); !errors.Is(err, tensor.ErrEmptyShape) {
		t.Errorf("NewShape(): got %v, want ErrEmptyShape", err)
	}
}

// TestGrid verifies workgroup count helpers.
func TestGrid(t *testing.T) {
	tests := []struct {
		total, group, want int
	}{
		{10000, 256, 40},
		{1000, 256, 4},
		{256, 256, 1},
		{0, 64, 0},
	}
	for _, tt := range tests {
		if got := tensor.CDiv(tt.total, tt.group); got != tt.want {
			t.Errorf("CDiv(%d, %d) = %d, want %d", tt.total, tt.group, got, tt.want)
		}
	}

	grid := tensor.Grid1D(1000, 256)
	if !grid.Equal(tensor.Shape{4, 1, 1}) {
		t.Errorf("Grid1D(1000, 256) = %v, want [4 1 1]", grid)
	}
}

// TestNumTypes verifies element type names and Go type mapping.
func TestNumTypes(t *testing.T) {
	for _, nt := range []tensor.NumType{tensor.F16, tensor.F32, tensor.I32, tensor.U32} {
		parsed, err := tensor.ParseNumType(nt.String())
		if err != nil || parsed != nt {
			t.Errorf("ParseNumType(%q) = %v, %v", nt.String(), parsed, err)
		}
	}
	if tensor.TypeOf[float16.Float16]() != tensor.F16 {
		t.Error("TypeOf[float16.Float16] is not F16")
	}
	if tensor.TypeOf[uint32]() != tensor.U32 {
		t.Error("TypeOf[uint32] is not U32")
	}
}
