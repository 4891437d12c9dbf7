// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gpu

import (
	"log/slog"
	"time"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/kernels"
	"github.com/born-ml/gpurt/internal/runtime"
	"github.com/born-ml/gpurt/tensor"
)

// Type aliases for public API

// Context owns a compute device and every resource created on it.
type Context = runtime.Context

// Tensor is a device-resident buffer with a shape and an element type.
type Tensor = runtime.Tensor

// Kernel is a compiled kernel bound to tensors, params and a grid.
type Kernel = runtime.Kernel

// KernelCode is a WGSL template with its launch parameters.
type KernelCode = runtime.KernelCode

// KernelBuilder binds tensors to a kernel by variable name.
type KernelBuilder = runtime.KernelBuilder

// KernelState is the lifecycle state of a Kernel.
type KernelState = runtime.KernelState

// Completion is the one-shot signal of a dispatch.
type Completion = runtime.Completion

// Binding is a tensor seen by a kernel starting at a byte offset.
type Binding = runtime.Binding

// MemoryStats represents a Context's memory and dispatch statistics.
type MemoryStats = runtime.MemoryStats

// Option configures a Context.
type Option = runtime.Option

// TensorID and KernelID identify resources within a Context.
type (
	TensorID = runtime.TensorID
	KernelID = runtime.KernelID
)

// HostFunc is the host implementation of a kernel for one invocation.
type HostFunc = backend.HostFunc

// Bindings gives a HostFunc access to the bound buffers and params.
type Bindings = backend.Bindings

// KernelInfo describes a built-in kernel.
type KernelInfo = kernels.Info

// Kernel lifecycle states.
const (
	KernelCreated   = runtime.KernelCreated
	KernelSubmitted = runtime.KernelSubmitted
	KernelCompleted = runtime.KernelCompleted
)

// DeviceAuto selects the GPU when available and the software device otherwise.
const DeviceAuto = runtime.DeviceAuto

// DefaultEntryPoint is the compute function a KernelCode names by default.
const DefaultEntryPoint = runtime.DefaultEntryPoint

// CreateContext opens a device and returns a Context on it. Settings not
// given as options come from the GPURT_* environment variables.
func CreateContext(opts ...Option) (*Context, error) {
	return runtime.New(opts...)
}

// WithDevice selects a device by name ("webgpu", "cpu") or DeviceAuto.
func WithDevice(name string) Option { return runtime.WithDevice(name) }

// WithLogger sets the Context's logger.
func WithLogger(logger *slog.Logger) Option { return runtime.WithLogger(logger) }

// WithDispatchTimeout bounds how long Context.Run waits. Zero waits forever.
func WithDispatchTimeout(d time.Duration) Option { return runtime.WithDispatchTimeout(d) }

// WithWorkers sets the software device worker count.
func WithWorkers(n int) Option { return runtime.WithWorkers(n) }

// WithMaxBatch sets how many WebGPU command buffers may be pending before a
// submission is forced. Zero submits on every wait.
func WithMaxBatch(n int) Option { return runtime.WithMaxBatch(n) }

// WithMemoryLimit caps the software device's allocations. Zero is unlimited.
func WithMemoryLimit(bytes uint64) Option { return runtime.WithMemoryLimit(bytes) }

// NewKernelCode returns a KernelCode with the default entry point.
func NewKernelCode(name, source string, workgroupSize int, precision tensor.NumType) KernelCode {
	return runtime.NewKernelCode(name, source, workgroupSize, precision)
}

// ToGPU uploads data into t. T must match the tensor's element type and
// len(data) must equal its element count.
func ToGPU[T tensor.Element](ctx *Context, t *Tensor, data []T) error {
	return runtime.ToGPU(ctx, t, data)
}

// ToCPU copies len(out) elements of t into out, waiting for the dispatches
// that bind t.
func ToCPU[T tensor.Element](ctx *Context, t *Tensor, out []T) error {
	return runtime.ToCPU(ctx, t, out)
}

// Devices returns the names of the devices built into this binary.
func Devices() []string {
	return backend.Names()
}

// BuiltinKernels lists the kernels that ship with gpurt.
func BuiltinKernels() []KernelInfo {
	return kernels.List()
}

// BuiltinKernel returns the named built-in kernel for the given workgroup
// size and element type.
func BuiltinKernel(name string, workgroupSize int, nt tensor.NumType) (KernelCode, error) {
	return kernels.Lookup(name, workgroupSize, nt)
}
