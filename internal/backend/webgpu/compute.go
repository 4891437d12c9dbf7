//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gpurt/internal/backend"
)

const (
	storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	stagingUsage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	uniformUsage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst

	// markerSize is the size of the completion marker copied after each dispatch.
	markerSize = 4
)

// align4 rounds n up to the 4-byte granularity of buffer copies.
func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached by source text.
func (d *Device) compileShader(code string) (shader *wgpu.ShaderModule, err error) {
	d.mu.RLock()
	if shader, exists := d.shaders[code]; exists {
		d.mu.RUnlock()
		return shader, nil
	}
	d.mu.RUnlock()

	// wgpu_native reports validation failures by panicking through the
	// error callback.
	defer func() {
		if r := recover(); r != nil {
			shader, err = nil, fmt.Errorf("webgpu: shader compilation failed: %v", r)
		}
	}()
	shader = d.device.CreateShaderModuleWGSL(code)
	if shader == nil {
		return nil, fmt.Errorf("webgpu: shader compilation failed")
	}

	d.mu.Lock()
	d.shaders[code] = shader
	d.mu.Unlock()

	return shader, nil
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (d *Device) getOrCreatePipeline(key, entryPoint string, shader *wgpu.ShaderModule) (pipeline *wgpu.ComputePipeline, err error) {
	d.mu.RLock()
	if pipeline, exists := d.pipelines[key]; exists {
		d.mu.RUnlock()
		return pipeline, nil
	}
	d.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			pipeline, err = nil, fmt.Errorf("webgpu: pipeline creation failed: %v", r)
		}
	}()
	// Create compute pipeline with auto layout (nil layout)
	pipeline = d.device.CreateComputePipelineSimple(nil, shader, entryPoint)
	if pipeline == nil {
		return nil, fmt.Errorf("webgpu: pipeline creation failed for entry point %q", entryPoint)
	}

	d.mu.Lock()
	d.pipelines[key] = pipeline
	d.mu.Unlock()

	return pipeline, nil
}

// CompileProgram compiles the expanded WGSL of src into a compute pipeline.
func (d *Device) CompileProgram(src backend.ProgramSource) (backend.ProgramHandle, error) {
	shader, err := d.compileShader(src.Code)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Label, err)
	}
	pipeline, err := d.getOrCreatePipeline(src.EntryPoint+"\x00"+src.Code, src.EntryPoint, shader)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src.Label, err)
	}

	prog := &gpuProgram{label: src.Label, pipeline: pipeline, uniformSlot: -1}
	if src.Module != nil {
		if slot, ok := src.Module.UniformSlot(); ok {
			prog.uniformSlot = slot
		}
	}

	h := backend.ProgramHandle(d.next.Add(1))
	d.mu.Lock()
	d.programs[h] = prog
	d.mu.Unlock()

	d.log.Debug("program compiled", "label", src.Label, "entry", src.EntryPoint)
	return h, nil
}

// ReleaseProgram forgets a program. The pipeline stays cached for reuse.
func (d *Device) ReleaseProgram(h backend.ProgramHandle) {
	d.mu.Lock()
	delete(d.programs, h)
	d.mu.Unlock()
}

// createBuffer creates a GPU buffer and uploads initial data.
func (d *Device) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := align4(uint64(len(data)))

	// Create buffer with MappedAtCreation for initial data upload
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer fills a pooled uniform buffer with params.
// Uniform buffers require 16-byte alignment for struct fields.
func (d *Device) createUniformBuffer(params []byte) (*wgpu.Buffer, uint64) {
	size := uint64(len(params))
	alignedSize := (size + 15) &^ 15 // Round up to 16-byte boundary

	padded := make([]byte, alignedSize)
	copy(padded, params)

	buffer := d.bufferPool.Acquire(alignedSize, uniformUsage)
	staging := d.createBuffer(padded, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, buffer, 0, alignedSize)
	d.queueCommand(encoder.Finish(nil))

	return buffer, alignedSize
}

func (d *Device) lookup(h backend.BufferHandle) (*gpuBuffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", backend.ErrInvalidHandle, h)
	}
	return b, nil
}

// checkRange validates a copy window. Copies work on 4-byte units.
func checkRange(b *gpuBuffer, offset, size uint64) error {
	if offset%4 != 0 {
		return fmt.Errorf("webgpu: offset %d is not 4-byte aligned", offset)
	}
	if offset+align4(size) > b.size {
		return fmt.Errorf("webgpu: range [%d, %d) out of bounds for %d-byte buffer", offset, offset+size, b.size)
	}
	return nil
}

// CreateBuffer allocates a zero-initialized storage buffer.
func (d *Device) CreateBuffer(size uint64) (h backend.BufferHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = 0, fmt.Errorf("%w: %v", backend.ErrOutOfMemory, r)
		}
	}()

	size = align4(max(size, markerSize))
	buffer := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  size,
	})
	if buffer == nil {
		return 0, fmt.Errorf("%w: %d bytes", backend.ErrOutOfMemory, size)
	}

	h = backend.BufferHandle(d.next.Add(1))
	d.mu.Lock()
	d.buffers[h] = &gpuBuffer{buffer: buffer, size: size}
	d.mu.Unlock()
	d.trackBufferAllocation(size)

	return h, nil
}

// WriteBuffer uploads data at offset through a staging buffer. Pending
// dispatches are submitted first so the write is ordered after them.
func (d *Device) WriteBuffer(h backend.BufferHandle, offset uint64, data []byte) error {
	dst, err := d.lookup(h)
	if err != nil {
		return err
	}
	if err := checkRange(dst, offset, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	staging := d.createBuffer(data, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst.buffer, offset, align4(uint64(len(data))))
	d.queueCommand(encoder.Finish(nil))
	d.flushCommands()

	return nil
}

// ReadBuffer reads size bytes at offset back to host memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (d *Device) ReadBuffer(h backend.BufferHandle, offset, size uint64) ([]byte, error) {
	src, err := d.lookup(h)
	if err != nil {
		return nil, err
	}
	if err := checkRange(src, offset, size); err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	padded := align4(size)
	staging := d.bufferPool.Acquire(padded, stagingUsage)
	defer d.bufferPool.Release(staging, padded, stagingUsage)

	// Copy from GPU buffer to staging buffer, after everything queued so far.
	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src.buffer, offset, staging, 0, padded)
	d.queueCommand(encoder.Finish(nil))
	d.flushCommands()

	// Map staging buffer for reading
	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, padded); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, padded)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)
	staging.Unmap()

	return result, nil
}

// ReleaseBuffer frees a storage buffer.
func (d *Device) ReleaseBuffer(h backend.BufferHandle) {
	d.mu.Lock()
	b, ok := d.buffers[h]
	delete(d.buffers, h)
	d.mu.Unlock()

	if !ok {
		return
	}
	b.buffer.Release()
	d.trackBufferRelease(b.size)
}
