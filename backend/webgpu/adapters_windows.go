//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu

import (
	"fmt"

	internalwebgpu "github.com/born-ml/gpurt/internal/backend/webgpu"
)

// IsAvailable checks if WebGPU is available on the current system.
//
// This function attempts to initialize a WebGPU adapter to verify
// that a compatible GPU and drivers are present.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// ListAdapters returns the GPU adapters WebGPU can use.
func ListAdapters() ([]Adapter, error) {
	infos, err := internalwebgpu.ListAdapters()
	if err != nil {
		return nil, err
	}
	adapters := make([]Adapter, 0, len(infos))
	for _, info := range infos {
		adapters = append(adapters, Adapter{
			Vendor:       info.Vendor,
			Device:       info.Device,
			Description:  info.Description,
			Architecture: info.Architecture,
			Backend:      fmt.Sprint(info.BackendType),
			Type:         fmt.Sprint(info.AdapterType),
		})
	}
	return adapters, nil
}
