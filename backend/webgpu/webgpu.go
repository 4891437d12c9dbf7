// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu describes the WebGPU compute device.
//
// WebGPU is a cross-platform graphics and compute API. gpurt drives it
// through go-webgpu, which loads wgpu_native at runtime without CGO. The
// device is currently built on Windows only; elsewhere IsAvailable reports
// false and the runtime falls back to the software device.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gpurt/backend/webgpu"
//	    "github.com/born-ml/gpurt/gpu"
//	)
//
//	func main() {
//	    device := gpu.DeviceAuto
//	    if webgpu.IsAvailable() {
//	        device = webgpu.Name
//	    }
//	    ctx, err := gpu.CreateContext(gpu.WithDevice(device))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Release()
//	}
package webgpu

import (
	"errors"
	"fmt"
)

// Name is the device name that selects the WebGPU device.
const Name = "webgpu"

// ErrUnsupported is returned by ListAdapters on platforms without the
// WebGPU device.
var ErrUnsupported = errors.New("webgpu: not supported on this platform")

// Adapter describes a GPU adapter.
type Adapter struct {
	Vendor       string
	Device       string
	Description  string
	Architecture string
	Backend      string
	Type         string
}

// String returns a one-line description.
func (a Adapter) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", a.Vendor, a.Device, a.Backend, a.Type)
}
