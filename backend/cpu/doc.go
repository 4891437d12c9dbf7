// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu describes the software compute device.
//
// # Overview
//
// The software device runs kernels without a GPU:
//   - Pure Go implementation (no CGO)
//   - Kernels are validated by WGSL reflection like on the GPU
//   - The kernel's host implementation runs once per invocation
//   - Workgroups are spread over a worker pool
//
// Dispatches execute one at a time in submission order, so results are
// deterministic and match the ordering guarantees of the WebGPU device.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/gpurt/backend/cpu"
//	    "github.com/born-ml/gpurt/gpu"
//	)
//
//	func main() {
//	    ctx, err := gpu.CreateContext(gpu.WithDevice(cpu.Name), gpu.WithWorkers(4))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Release()
//	}
//
// # Host Implementations
//
// A kernel runs on the software device only if its KernelCode carries a
// host function. The function receives the global invocation id and the
// bound buffers, and must do what the shader does for that invocation:
//
//	code := gpu.NewKernelCode("double", src, 256, tensor.F32).
//	    WithHost(func(id [3]uint32, b *gpu.Bindings) error {
//	        i := int(id[0])
//	        if i < b.Len(0) {
//	            b.Store(1, i, 2*b.Load(0, i))
//	        }
//	        return nil
//	    })
//
// Kernels without one fail to compile with ErrNoHost.
package cpu
