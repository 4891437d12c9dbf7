//go:build !windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu

// IsAvailable reports false: the WebGPU device is not built on this platform.
func IsAvailable() bool {
	return false
}

// ListAdapters returns ErrUnsupported on this platform.
func ListAdapters() ([]Adapter, error) {
	return nil, ErrUnsupported
}
