//go:build windows

package webgpu

import (
	"math/bits"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

const (
	// minPooledSize is the smallest size class. Uniform buffers need 16-byte
	// sizes, so every class is a multiple of it.
	minPooledSize = 16
	// maxPoolSize caps the idle buffers kept per class.
	maxPoolSize = 32
)

// poolKey identifies a class of interchangeable buffers.
type poolKey struct {
	size  uint64
	usage wgpu.BufferUsage
}

// BufferPool recycles the short-lived buffers a dispatch needs: read-back
// staging buffers and uniform parameter blocks. Sizes are rounded up to a
// power of two so that nearby requests share a class.
type BufferPool struct {
	device *wgpu.Device

	idle map[poolKey][]*wgpu.Buffer
	mu   sync.Mutex

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewBufferPool creates a new buffer pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{
		device: device,
		idle:   make(map[poolKey][]*wgpu.Buffer),
	}
}

// classSize rounds size up to its pool class.
func classSize(size uint64) uint64 {
	if size <= minPooledSize {
		return minPooledSize
	}
	return 1 << bits.Len64(size-1)
}

// Acquire returns an idle buffer of at least size bytes with exactly usage,
// or creates one.
func (p *BufferPool) Acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	key := poolKey{size: classSize(size), usage: usage}

	p.mu.Lock()
	defer p.mu.Unlock()

	if free := p.idle[key]; len(free) > 0 {
		buffer := free[len(free)-1]
		p.idle[key] = free[:len(free)-1]
		p.poolHits++
		return buffer
	}

	p.poolMisses++
	p.totalAllocated++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  key.size,
	})
}

// Release returns a buffer obtained from Acquire with the same size and
// usage. If the class is full the buffer is released immediately.
func (p *BufferPool) Release(buffer *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	key := poolKey{size: classSize(size), usage: usage}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++
	if len(p.idle[key]) >= maxPoolSize {
		buffer.Release()
		return
	}
	p.idle[key] = append(p.idle[key], buffer)
}

// Clear releases all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, free := range p.idle {
		for _, b := range free {
			b.Release()
		}
		delete(p.idle, key)
	}
}

// Stats returns statistics about buffer pool usage.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, free := range p.idle {
		pooledCount += len(free)
	}
	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses, pooledCount
}
