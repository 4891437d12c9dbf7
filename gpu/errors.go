// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gpu

import (
	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/runtime"
)

// Errors returned by the runtime. Test for them with errors.Is.
var (
	ErrNoDevice          = runtime.ErrNoDevice
	ErrReleased          = runtime.ErrReleased
	ErrForeignResource   = runtime.ErrForeignResource
	ErrTensorBusy        = runtime.ErrTensorBusy
	ErrKernelBusy        = runtime.ErrKernelBusy
	ErrHostBufferSize    = runtime.ErrHostBufferSize
	ErrTypeMismatch      = runtime.ErrTypeMismatch
	ErrBindingCount      = runtime.ErrBindingCount
	ErrUnknownBinding    = runtime.ErrUnknownBinding
	ErrInvalidOffset     = runtime.ErrInvalidOffset
	ErrParams            = runtime.ErrParams
	ErrCompile           = runtime.ErrCompile
	ErrInvalidGrid       = runtime.ErrInvalidGrid
	ErrAlreadyDispatched = runtime.ErrAlreadyDispatched
	ErrTimeout           = runtime.ErrTimeout
	ErrUnresolvedToken   = runtime.ErrUnresolvedToken
	ErrReflect           = runtime.ErrReflect

	// ErrOutOfMemory is wrapped by CreateTensor when the device cannot
	// allocate the buffer.
	ErrOutOfMemory = backend.ErrOutOfMemory
)
