// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gpu is a small runtime for running WGSL compute kernels on
// device-resident tensors.
//
// # Overview
//
// A program creates a Context, allocates Tensors on its device, uploads
// host data, binds tensors to a compiled kernel, dispatches it and reads
// the results back:
//
//	ctx, err := gpu.CreateContext()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Release()
//
//	shape := tensor.MustShape(n)
//	input, _ := ctx.CreateTensor(shape, tensor.F32)
//	output, _ := ctx.CreateTensor(shape, tensor.F32)
//	_ = gpu.ToGPU(ctx, input, data)
//
//	code, _ := gpu.BuiltinKernel("gelu", 256, tensor.F32)
//	k, _ := ctx.CreateKernel(code, []*gpu.Tensor{input, output}, tensor.Grid1D(n, 256), nil)
//	if err := ctx.Run(context.Background(), k); err != nil {
//	    log.Fatal(err)
//	}
//	_ = gpu.ToCPU(ctx, output, result)
//
// # Devices
//
// Two devices are available. "webgpu" runs kernels on the GPU through
// go-webgpu. "cpu" is a software device that runs each kernel's host
// implementation and needs no GPU. The default, DeviceAuto, picks webgpu
// when an adapter is present and falls back to cpu otherwise. Set
// GPURT_DEVICE or pass WithDevice to choose explicitly.
//
// # Kernels
//
// Kernel sources are WGSL templates. {{precision}} expands to the WGSL name
// of the KernelCode's NumType and {{workgroupSize}} to its 1-D workgroup
// size; any other {{...}} token is an error. Tensors bind to storage slots
// either positionally with CreateKernel or by variable name with
// NewKernelBuilder, which checks every name against the shader.
//
// A Kernel is dispatched at most once. Dispatch returns a Completion that
// is signaled exactly once when the device has finished; Wait on it, or use
// Run to dispatch and wait in one call.
//
// # Resources
//
// Tensors and Kernels belong to the Context that created them and are freed
// by Context.Release, which first waits for in-flight dispatches. They may
// also be released early. Host reads and writes of a tensor wait for the
// dispatches that bind it, so a read always observes their results.
//
// Every failure is reported as an error wrapping one of the Err* sentinels;
// use errors.Is to test for them.
package gpu
