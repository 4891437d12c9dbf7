//go:build windows

package webgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gpurt/internal/backend"
)

// Name is the registry name of the WebGPU device.
const Name = "webgpu"

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Device, error) {
		return New(cfg)
	})
}

type gpuBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
}

type gpuProgram struct {
	label       string
	pipeline    *wgpu.ComputePipeline
	uniformSlot int // -1 without a uniform block
}

var _ backend.Device = (*Device)(nil)

// Device implements backend.Device on a WebGPU adapter.
type Device struct {
	log *slog.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Device info
	adapterInfo *wgpu.AdapterInfo

	// Shader and pipeline cache, keyed by expanded source (+ entry point).
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	buffers  map[backend.BufferHandle]*gpuBuffer
	programs map[backend.ProgramHandle]*gpuProgram
	next     atomic.Uint64

	// Buffer pool for read-back staging buffers.
	bufferPool *BufferPool

	// marker is copied into a staging buffer after every dispatch. Mapping
	// that staging buffer completes once the dispatch has executed.
	marker *wgpu.Buffer

	// completions waits for submitted dispatches in FIFO order.
	completions *backend.Queue

	// Memory tracking
	memoryStats struct {
		totalAllocatedBytes uint64
		peakMemoryBytes     uint64
		activeBuffers       int64
		mu                  sync.RWMutex
	}

	// Command batching: dispatch command buffers accumulate here and are
	// submitted together by the completion goroutine, by a read or write,
	// or when maxBatchSize is reached.
	pendingCommands []*wgpu.CommandBuffer
	pendingMu       sync.Mutex
	maxBatchSize    int // Maximum commands before auto-flush (0 = no limit)

	// submitMu keeps command order and completion order identical.
	submitMu sync.Mutex
}

// New creates a WebGPU device.
// Returns an error if WebGPU is not available or initialization fails.
func New(cfg backend.Config) (dev *Device, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			dev = nil
			err = fmt.Errorf("%w: webgpu native library not available: %v", backend.ErrUnavailable, r)
		}
	}()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create WebGPU instance
	instance := wgpu.CreateInstance(nil)
	// Request adapter (GPU)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to request adapter: %w", backend.ErrUnavailable, adapterErr)
	}

	// Get adapter info (optional - don't fail if unavailable)
	adapterInfo := adapter.GetInfo()

	// Request device
	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to request device: %w", backend.ErrUnavailable, deviceErr)
	}

	// Get default queue
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu: failed to get queue", backend.ErrUnavailable)
	}

	d := &Device{
		log:          logger.With("device", Name),
		instance:     instance,
		adapter:      adapter,
		device:       device,
		queue:        queue,
		adapterInfo:  &adapterInfo,
		shaders:      make(map[string]*wgpu.ShaderModule),
		pipelines:    make(map[string]*wgpu.ComputePipeline),
		buffers:      make(map[backend.BufferHandle]*gpuBuffer),
		programs:     make(map[backend.ProgramHandle]*gpuProgram),
		bufferPool:   NewBufferPool(device),
		completions:  backend.NewQueue(),
		maxBatchSize: cfg.MaxBatch,
	}
	d.marker = d.createBuffer(make([]byte, markerSize), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)

	d.log.Debug("webgpu device ready", "name", d.Name())
	return d, nil
}

// Name returns the adapter name.
func (d *Device) Name() string {
	if d.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", d.adapterInfo.Device, d.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// AdapterInfo returns information about the GPU adapter.
func (d *Device) AdapterInfo() *wgpu.AdapterInfo {
	return d.adapterInfo
}

// queueCommand adds a command buffer to the pending queue for batch submission.
func (d *Device) queueCommand(cmdBuffer *wgpu.CommandBuffer) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.pendingCommands = append(d.pendingCommands, cmdBuffer)

	// Auto-flush if batch size limit is reached (0 = no limit)
	if d.maxBatchSize > 0 && len(d.pendingCommands) >= d.maxBatchSize {
		d.flushCommandsLocked()
	}
}

// flushCommands submits all pending command buffers to the GPU queue.
func (d *Device) flushCommands() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.flushCommandsLocked()
}

// flushCommandsLocked submits all pending command buffers (must hold pendingMu lock).
func (d *Device) flushCommandsLocked() {
	if len(d.pendingCommands) == 0 {
		return
	}
	d.queue.Submit(d.pendingCommands...)
	d.pendingCommands = d.pendingCommands[:0]
}

// Release waits for in-flight dispatches and releases all WebGPU resources.
func (d *Device) Release() {
	// Flush so the completion goroutine can drain.
	d.flushCommands()
	d.completions.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bufferPool != nil {
		d.bufferPool.Clear()
		d.bufferPool = nil
	}

	for h, b := range d.buffers {
		b.buffer.Release()
		delete(d.buffers, h)
	}
	if d.marker != nil {
		d.marker.Release()
		d.marker = nil
	}

	// Release pipelines
	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	d.programs = nil

	// Release shaders
	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil

	// Release WebGPU objects
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// ListAdapters returns information about the available GPU adapters.
// WebGPU has no enumeration API, so this is the default adapter only.
func ListAdapters() (adapters []*wgpu.AdapterInfo, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			adapters = nil
			err = fmt.Errorf("%w: webgpu native library not available: %v", backend.ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, adapterErr := instance.RequestAdapter(nil)
	if adapterErr != nil {
		return nil, fmt.Errorf("%w: webgpu: no adapters available: %w", backend.ErrUnavailable, adapterErr)
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	return []*wgpu.AdapterInfo{&info}, nil
}

// Stats returns buffer and pool statistics.
func (d *Device) Stats() backend.DeviceStats {
	d.memoryStats.mu.RLock()
	inUse := d.memoryStats.totalAllocatedBytes
	d.memoryStats.mu.RUnlock()

	stats := backend.DeviceStats{BytesInUse: inUse}
	if d.bufferPool != nil {
		_, _, hits, misses, pooled := d.bufferPool.Stats()
		stats.PoolHits = hits
		stats.PoolMisses = misses
		stats.PooledBuffers = pooled
	}
	return stats
}

// trackBufferAllocation records a buffer allocation in memory statistics.
func (d *Device) trackBufferAllocation(size uint64) {
	d.memoryStats.mu.Lock()
	defer d.memoryStats.mu.Unlock()

	d.memoryStats.totalAllocatedBytes += size
	d.memoryStats.activeBuffers++

	// Update peak memory if needed
	currentMemory := d.memoryStats.totalAllocatedBytes
	if currentMemory > d.memoryStats.peakMemoryBytes {
		d.memoryStats.peakMemoryBytes = currentMemory
	}
}

// trackBufferRelease records a buffer release in memory statistics.
func (d *Device) trackBufferRelease(size uint64) {
	d.memoryStats.mu.Lock()
	defer d.memoryStats.mu.Unlock()

	if d.memoryStats.totalAllocatedBytes >= size {
		d.memoryStats.totalAllocatedBytes -= size
	}
	d.memoryStats.activeBuffers--
}
