// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/gpurt/internal/backend/cpu"
	"github.com/born-ml/gpurt/internal/envconfig"
)

// Name is the device name that selects the software device.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gpurt/backend/cpu"
//	    "github.com/born-ml/gpurt/gpu"
//	)
//
//	func main() {
//	    ctx, err := gpu.CreateContext(gpu.WithDevice(cpu.Name))
//	}
const Name = internalcpu.Name

// ErrNoHost is returned when a kernel without a host implementation is
// created on the software device.
var ErrNoHost = internalcpu.ErrNoHost

// IsAvailable reports whether the software device can be used. It always can.
func IsAvailable() bool {
	return true
}

// Workers returns the worker count the software device uses by default
// (GPURT_NUM_WORKERS, or the number of CPUs).
func Workers() int {
	return int(envconfig.NumWorkers()) //nolint:gosec // G115: worker counts are small
}
