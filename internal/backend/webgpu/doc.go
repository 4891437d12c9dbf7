// Package webgpu implements the WebGPU compute device.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The device is only built on Windows, where go-webgpu loads wgpu_native at
// runtime. On other platforms this package is empty and the runtime falls
// back to the software device.
package webgpu
