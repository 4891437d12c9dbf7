// Package backend defines the device interface the runtime is built on and a
// registry of device implementations.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/born-ml/gpurt/internal/tensor"
	"github.com/born-ml/gpurt/internal/wgsl"
)

// BufferHandle identifies a device buffer. Zero is never a valid handle.
type BufferHandle uint64

// ProgramHandle identifies a compiled compute program. Zero is never valid.
type ProgramHandle uint64

var (
	// ErrUnavailable is returned by a factory when its device cannot be opened
	// on this system.
	ErrUnavailable = errors.New("device unavailable")
	// ErrOutOfMemory is returned when an allocation exceeds device memory.
	ErrOutOfMemory = errors.New("out of device memory")
	// ErrInvalidHandle is returned for handles the device does not know.
	ErrInvalidHandle = errors.New("invalid handle")
)

// HostFunc is the host implementation of a kernel. The software device calls
// it once per invocation of the dispatch grid, concurrently across
// workgroups. It must bounds-check like the WGSL body does.
type HostFunc func(id [3]uint32, b *Bindings) error

// ProgramSource is everything a device needs to compile a kernel.
type ProgramSource struct {
	Label      string
	Code       string // expanded WGSL
	EntryPoint string
	Module     *wgsl.Module
	Precision  tensor.NumType
	Host       HostFunc
}

// BufferBinding binds a buffer range to a slot.
type BufferBinding struct {
	Slot   int
	Buffer BufferHandle
	Offset uint64
	Size   uint64
	Type   tensor.NumType
}

// Dispatch is one submission of a compiled program.
type Dispatch struct {
	Label    string
	Program  ProgramHandle
	Bindings []BufferBinding
	Params   []byte // contents of the uniform slot, if any
	Grid     [3]uint32
}

// Device is the native compute backend: buffers, programs and a queue.
// All methods except Submit block until the device call has finished.
type Device interface {
	Name() string

	CreateBuffer(size uint64) (BufferHandle, error)
	WriteBuffer(h BufferHandle, offset uint64, data []byte) error
	ReadBuffer(h BufferHandle, offset, size uint64) ([]byte, error)
	ReleaseBuffer(h BufferHandle)

	CompileProgram(src ProgramSource) (ProgramHandle, error)
	ReleaseProgram(h ProgramHandle)

	// Submit enqueues d and returns immediately. done is called exactly once,
	// from a device-owned goroutine, after the device has finished writing
	// every output of d. Submissions complete in FIFO order.
	Submit(d Dispatch, done func(error)) error

	// Release waits for queued work and frees the device.
	Release()
}

// DeviceStats are allocation statistics kept by a device.
type DeviceStats struct {
	BytesInUse    uint64
	PoolHits      uint64
	PoolMisses    uint64
	PooledBuffers int
}

// StatsReporter is implemented by devices that keep DeviceStats.
type StatsReporter interface {
	Stats() DeviceStats
}

// Config is passed to device factories.
type Config struct {
	Logger      *slog.Logger
	Workers     int    // software device worker goroutines
	MaxBatch    int    // WebGPU pending-command auto flush, 0 = no limit
	MemoryLimit uint64 // software device byte budget, 0 = unlimited
}

// Factory opens a device.
type Factory func(cfg Config) (Device, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a device available by name. It panics on duplicates.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic("backend: device already registered: " + name)
	}
	factories[name] = f
}

// Names returns the registered device names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the named device.
func Open(name string, cfg Config) (Device, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no device named %q (registered: %v)", ErrUnavailable, name, Names())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return f(cfg)
}
