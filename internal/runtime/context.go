// Package runtime is the compute runtime: a Context owns a device and the
// tensors and kernels created on it, and dispatches kernels asynchronously.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/born-ml/gpurt/internal/backend"
	// Devices register themselves with the backend registry.
	_ "github.com/born-ml/gpurt/internal/backend/cpu"
	_ "github.com/born-ml/gpurt/internal/backend/webgpu"
)

// TensorID identifies a tensor within its Context.
type TensorID uint64

// KernelID identifies a kernel within its Context.
type KernelID uint64

// Context owns a device and every tensor and kernel created on it.
// Resources never cross Contexts. Release frees whatever is still live.
type Context struct {
	id         string
	cfg        config
	log        *slog.Logger
	device     backend.Device
	deviceName string

	mu       sync.RWMutex
	tensors  map[TensorID]*Tensor
	kernels  map[KernelID]*Kernel
	released bool
	nextID   atomic.Uint64

	// inflight counts submitted dispatches whose completion has not fired.
	inflight sync.WaitGroup

	stats struct {
		mu sync.Mutex
		MemoryStats
	}
}

// New opens a device and returns a Context on it.
func New(opts ...Option) (*Context, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	log := cfg.logger.With("context", id)

	dev, name, err := openDevice(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		id:         id,
		cfg:        cfg,
		log:        log,
		device:     dev,
		deviceName: name,
		tensors:    make(map[TensorID]*Tensor),
		kernels:    make(map[KernelID]*Kernel),
	}
	log.Debug("context created", "device", name, "adapter", dev.Name())
	return ctx, nil
}

func openDevice(cfg config, log *slog.Logger) (backend.Device, string, error) {
	bcfg := backend.Config{
		Logger:      cfg.logger,
		Workers:     cfg.workers,
		MaxBatch:    cfg.maxBatch,
		MemoryLimit: cfg.memoryLimit,
	}

	if cfg.device != "" && cfg.device != DeviceAuto {
		dev, err := backend.Open(cfg.device, bcfg)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %w", ErrNoDevice, cfg.device, err)
		}
		return dev, cfg.device, nil
	}

	registered := backend.Names()
	var errs []error
	for _, name := range devicePreference {
		if !slices.Contains(registered, name) {
			continue
		}
		dev, err := backend.Open(name, bcfg)
		if err == nil {
			return dev, name, nil
		}
		log.Warn("device unavailable, trying next", "device", name, "error", err)
		errs = append(errs, err)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrNoDevice, errors.Join(errs...))
}

// ID returns the unique label of the Context used in logs.
func (c *Context) ID() string {
	return c.id
}

// DeviceName returns the registry name of the device, e.g. "cpu".
func (c *Context) DeviceName() string {
	return c.deviceName
}

// DeviceInfo returns the device's own description.
func (c *Context) DeviceInfo() string {
	return c.device.Name()
}

// Stats returns a snapshot of the Context's memory and dispatch counters.
func (c *Context) Stats() MemoryStats {
	c.stats.mu.Lock()
	s := c.stats.MemoryStats
	c.stats.mu.Unlock()

	c.mu.RLock()
	s.LiveTensors = len(c.tensors)
	s.LiveKernels = len(c.kernels)
	c.mu.RUnlock()

	s.Device = c.deviceName
	if r, ok := c.device.(backend.StatsReporter); ok {
		s.DeviceStats = r.Stats()
	}
	return s
}

// Release waits for in-flight dispatches, then frees every live kernel and
// tensor and the device. Calling it again is a no-op.
func (c *Context) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.mu.Unlock()

	c.inflight.Wait()

	c.mu.Lock()
	kernels := c.kernels
	tensors := c.tensors
	c.kernels = make(map[KernelID]*Kernel)
	c.tensors = make(map[TensorID]*Tensor)
	c.mu.Unlock()

	for _, k := range kernels {
		k.free()
	}
	for _, t := range tensors {
		t.free()
	}
	c.device.Release()
	c.log.Debug("context released", "kernels", len(kernels), "tensors", len(tensors))
}

func (c *Context) newID() uint64 {
	return c.nextID.Add(1)
}

// checkLive returns ErrReleased once Release has started. Caller holds mu.
func (c *Context) checkLiveLocked() error {
	if c.released {
		return fmt.Errorf("%w: context %s", ErrReleased, c.id)
	}
	return nil
}

func (c *Context) checkLive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkLiveLocked()
}

// own checks that t was created by c and is still live.
func (c *Context) own(t *Tensor) error {
	if t == nil {
		return fmt.Errorf("gpurt: nil tensor")
	}
	if t.ctx != c {
		return fmt.Errorf("%w: tensor %d", ErrForeignResource, t.id)
	}
	if err := c.checkLive(); err != nil {
		return err
	}
	return t.checkLive()
}
