// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the shape and element type vocabulary of gpurt.
//
// # Overview
//
// A device tensor is described by two things:
//   - Shape: the dimensions, rank 1 to MaxRank
//   - NumType: the element type, one of F16, F32, I32, U32
//
// Shapes double as dispatch grids: a grid is a Shape of one to three
// workgroup counts.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gpurt/gpu"
//	    "github.com/born-ml/gpurt/tensor"
//	)
//
//	func main() {
//	    ctx, err := gpu.CreateContext()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Release()
//
//	    x, _ := ctx.CreateTensor(tensor.MustShape(1024), tensor.F32)
//	    grid := tensor.Grid1D(1024, 256) // {4, 1, 1}
//	}
//
// # Element Types
//
// NumType.String is the WGSL scalar name, which is what the {{precision}}
// placeholder of a kernel template expands to. Host slices copied to and from
// tensors must have the matching Go type:
//   - F32: float32
//   - F16: float16.Float16 (github.com/x448/float16)
//   - I32: int32
//   - U32: uint32
package tensor
