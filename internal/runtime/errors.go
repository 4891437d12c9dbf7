package runtime

import (
	"errors"

	"github.com/born-ml/gpurt/internal/wgsl"
)

var (
	// ErrNoDevice is returned by New when no requested device can be opened.
	ErrNoDevice = errors.New("gpurt: no compute device available")
	// ErrReleased is returned for any use of a released Context, Tensor or Kernel.
	ErrReleased = errors.New("gpurt: resource released")
	// ErrForeignResource is returned when a resource is used with a Context
	// other than the one that created it.
	ErrForeignResource = errors.New("gpurt: resource belongs to another context")
	// ErrTensorBusy is returned when releasing a tensor that an in-flight
	// dispatch still references.
	ErrTensorBusy = errors.New("gpurt: tensor is bound to an in-flight dispatch")
	// ErrKernelBusy is returned when releasing a submitted kernel.
	ErrKernelBusy = errors.New("gpurt: kernel is in flight")
	// ErrHostBufferSize is returned when a host slice does not fit the tensor.
	ErrHostBufferSize = errors.New("gpurt: host buffer size mismatch")
	// ErrTypeMismatch is returned when a host element type differs from the
	// tensor's numeric type.
	ErrTypeMismatch = errors.New("gpurt: element type mismatch")
	// ErrBindingCount is returned when the bound tensors do not cover the
	// storage slots declared by the kernel exactly once.
	ErrBindingCount = errors.New("gpurt: binding count mismatch")
	// ErrUnknownBinding is returned by KernelBuilder for names the kernel
	// does not declare.
	ErrUnknownBinding = errors.New("gpurt: unknown binding")
	// ErrInvalidOffset is returned for a binding view offset that is not
	// element aligned or lies outside the tensor.
	ErrInvalidOffset = errors.New("gpurt: invalid binding offset")
	// ErrParams is returned when params are given for a kernel without a
	// uniform binding, or missing for a kernel with one.
	ErrParams = errors.New("gpurt: kernel params mismatch")
	// ErrCompile is returned when the device rejects a kernel.
	ErrCompile = errors.New("gpurt: kernel compilation failed")
	// ErrInvalidGrid is returned for a grid that is not 1 to 3 positive counts.
	ErrInvalidGrid = errors.New("gpurt: invalid dispatch grid")
	// ErrAlreadyDispatched is returned when dispatching a kernel twice.
	ErrAlreadyDispatched = errors.New("gpurt: kernel already dispatched")
	// ErrTimeout is returned when waiting for a completion gives up.
	ErrTimeout = errors.New("gpurt: dispatch timed out")

	// ErrUnresolvedToken is returned when a kernel template keeps a {{...}}
	// token after substitution.
	ErrUnresolvedToken = wgsl.ErrUnresolvedToken
	// ErrReflect is returned when the kernel source does not declare a usable
	// entry point or bindings.
	ErrReflect = wgsl.ErrReflect
)
