package runtime

import "github.com/born-ml/gpurt/internal/backend"

// MemoryStats represents a Context's memory and dispatch statistics.
type MemoryStats struct {
	// Registry name of the device.
	Device string
	// Live resources owned by the Context.
	LiveTensors int
	LiveKernels int
	// Bytes held by live tensor buffers.
	BytesInUse uint64
	// Peak of BytesInUse since the Context was created.
	PeakBytes uint64
	// Tensor buffers allocated since the Context was created.
	Allocations uint64
	// Dispatch counters.
	Dispatches uint64
	Completed  uint64
	Failed     uint64
	// Counters kept by the device itself, if it reports any.
	DeviceStats backend.DeviceStats
}

func (c *Context) trackAllocation(size uint64) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	c.stats.Allocations++
	c.stats.BytesInUse += size
	if c.stats.BytesInUse > c.stats.PeakBytes {
		c.stats.PeakBytes = c.stats.BytesInUse
	}
}

func (c *Context) trackRelease(size uint64) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	if c.stats.BytesInUse >= size {
		c.stats.BytesInUse -= size
	}
}

func (c *Context) trackDispatch() {
	c.stats.mu.Lock()
	c.stats.Dispatches++
	c.stats.mu.Unlock()
}

func (c *Context) trackCompletion(err error) {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	c.stats.Completed++
	if err != nil {
		c.stats.Failed++
	}
}
