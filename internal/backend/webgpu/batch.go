//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gpurt/internal/backend"
)

// minBindingOffsetAlignment is the WebGPU default minStorageBufferOffsetAlignment.
const minBindingOffsetAlignment = 256

// commandBatch holds the GPU objects of one dispatch until it completes.
type commandBatch struct {
	label     string
	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup
	grid      [3]uint32

	uniform     *wgpu.Buffer
	uniformSize uint64

	// staging receives the completion marker.
	staging *wgpu.Buffer
}

// newBatch resolves the handles of dispatch and creates its bind group.
// Caller holds submitMu.
func (d *Device) newBatch(dispatch backend.Dispatch) (*commandBatch, error) {
	d.mu.RLock()
	prog, ok := d.programs[dispatch.Program]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: program %d", backend.ErrInvalidHandle, dispatch.Program)
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(dispatch.Bindings)+1)
	for _, b := range dispatch.Bindings {
		buf, err := d.lookup(b.Buffer)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", b.Slot, err)
		}
		if b.Offset%minBindingOffsetAlignment != 0 {
			return nil, fmt.Errorf("slot %d: offset %d is not a multiple of %d", b.Slot, b.Offset, minBindingOffsetAlignment)
		}
		if b.Offset >= buf.size {
			return nil, fmt.Errorf("slot %d: offset %d out of bounds for %d-byte buffer", b.Slot, b.Offset, buf.size)
		}
		size := buf.size - b.Offset
		if b.Size > 0 {
			size = min(align4(b.Size), size)
		}
		//nolint:gosec // G115: slots come from WGSL reflection and are small
		entries = append(entries, wgpu.BufferBindingEntry(uint32(b.Slot), buf.buffer, b.Offset, size))
	}

	batch := &commandBatch{
		label:    dispatch.Label,
		pipeline: prog.pipeline,
		grid:     dispatch.Grid,
	}
	if prog.uniformSlot >= 0 && len(dispatch.Params) > 0 {
		batch.uniform, batch.uniformSize = d.createUniformBuffer(dispatch.Params)
		//nolint:gosec // G115: see above
		entries = append(entries, wgpu.BufferBindingEntry(uint32(prog.uniformSlot), batch.uniform, 0, batch.uniformSize))
	}

	bindGroupLayout := prog.pipeline.GetBindGroupLayout(0)
	batch.bindGroup = d.device.CreateBindGroupSimple(bindGroupLayout, entries)
	if batch.bindGroup == nil {
		batch.release(d)
		return nil, fmt.Errorf("webgpu: %s: bind group creation failed", dispatch.Label)
	}

	batch.staging = d.bufferPool.Acquire(markerSize, stagingUsage)
	return batch, nil
}

// encode records the compute pass followed by the marker copy.
func (batch *commandBatch) encode(d *Device) *wgpu.CommandBuffer {
	encoder := d.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)

	computePass.SetPipeline(batch.pipeline)
	computePass.SetBindGroup(0, batch.bindGroup, nil)
	computePass.DispatchWorkgroups(batch.grid[0], batch.grid[1], batch.grid[2])
	computePass.End()

	encoder.CopyBufferToBuffer(d.marker, 0, batch.staging, 0, markerSize)
	return encoder.Finish(nil)
}

// wait blocks until the marker copy, and so the dispatch, has executed.
func (batch *commandBatch) wait(d *Device) error {
	if err := batch.staging.MapAsync(d.device, wgpu.MapModeRead, 0, markerSize); err != nil {
		return fmt.Errorf("webgpu: %s: %w", batch.label, err)
	}
	batch.staging.Unmap()
	return nil
}

// release returns pooled buffers and frees the bind group.
func (batch *commandBatch) release(d *Device) {
	if batch.bindGroup != nil {
		batch.bindGroup.Release()
		batch.bindGroup = nil
	}
	if batch.uniform != nil {
		d.bufferPool.Release(batch.uniform, batch.uniformSize, uniformUsage)
		batch.uniform = nil
	}
	if batch.staging != nil {
		d.bufferPool.Release(batch.staging, markerSize, stagingUsage)
		batch.staging = nil
	}
}

// Submit encodes dispatch, queues its command buffer for batched submission
// and returns. The completion goroutine flushes the pending commands, waits
// for the marker and calls done.
func (d *Device) Submit(dispatch backend.Dispatch, done func(error)) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	batch, err := d.newBatch(dispatch)
	if err != nil {
		return d.completions.Push(func() { done(err) })
	}
	d.queueCommand(batch.encode(d))

	pushErr := d.completions.Push(func() {
		d.flushCommands()
		err := batch.wait(d)
		batch.release(d)
		done(err)
	})
	if pushErr != nil {
		batch.release(d)
	}
	return pushErr
}

// Pending returns the number of command buffers waiting for submission.
func (d *Device) Pending() int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pendingCommands)
}
