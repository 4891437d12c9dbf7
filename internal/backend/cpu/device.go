// Package cpu implements a software compute device. It validates kernels by
// WGSL reflection and executes their host implementation over the dispatch
// grid on a worker pool, one dispatch at a time in submission order.
package cpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/parallel"
)

// Name is the registry name of the software device.
const Name = "cpu"

// MaxBufferSize is the largest single allocation the software device makes.
const MaxBufferSize = 1 << 40

// ErrNoHost is returned when compiling a kernel without a host implementation.
var ErrNoHost = errors.New("kernel has no host implementation")

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Device, error) {
		return New(cfg), nil
	})
}

type program struct {
	src           backend.ProgramSource
	workgroupSize [3]int
}

// Device is the software device.
type Device struct {
	log   *slog.Logger
	par   parallel.Config
	limit uint64

	mu       sync.RWMutex
	buffers  map[backend.BufferHandle][]byte
	programs map[backend.ProgramHandle]*program
	used     uint64
	next     atomic.Uint64

	queue *backend.Queue
}

// New creates a software device and starts its queue goroutine.
func New(cfg backend.Config) *Device {
	workers := cfg.Workers
	par := parallel.DefaultConfig()
	if workers > 0 {
		par = parallel.WithWorkers(workers)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Device{
		log:      logger.With("device", Name),
		par:      par,
		limit:    cfg.MemoryLimit,
		buffers:  make(map[backend.BufferHandle][]byte),
		programs: make(map[backend.ProgramHandle]*program),
		queue:    backend.NewQueue(),
	}
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return fmt.Sprintf("CPU (%d workers)", d.par.NumWorkers)
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(size uint64) (backend.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size > MaxBufferSize {
		return 0, fmt.Errorf("%w: %d bytes requested, max buffer size is %d", backend.ErrOutOfMemory, size, uint64(MaxBufferSize))
	}
	if d.limit > 0 && d.used+size > d.limit {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d in use", backend.ErrOutOfMemory, size, d.used, d.limit)
	}
	h := backend.BufferHandle(d.next.Add(1))
	d.buffers[h] = make([]byte, size)
	d.used += size
	return h, nil
}

// WriteBuffer copies data into the buffer at offset.
func (d *Device) WriteBuffer(h backend.BufferHandle, offset uint64, data []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	buf, err := d.lookup(h, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// ReadBuffer returns a copy of size bytes starting at offset.
func (d *Device) ReadBuffer(h backend.BufferHandle, offset, size uint64) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	buf, err := d.lookup(h, offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, buf)
	return out, nil
}

// lookup returns buffer h sliced to [offset, offset+size). Caller holds mu.
func (d *Device) lookup(h backend.BufferHandle, offset, size uint64) ([]byte, error) {
	buf, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", backend.ErrInvalidHandle, h)
	}
	if offset > uint64(len(buf)) || size > uint64(len(buf))-offset {
		return nil, fmt.Errorf("cpu: range [%d, %d) outside buffer %d of %d bytes", offset, offset+size, h, len(buf))
	}
	return buf[offset : offset+size], nil
}

// ReleaseBuffer frees the buffer.
func (d *Device) ReleaseBuffer(h backend.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if buf, ok := d.buffers[h]; ok {
		d.used -= uint64(len(buf))
		delete(d.buffers, h)
	}
}

// CompileProgram checks that the reflected module can be executed on the host.
func (d *Device) CompileProgram(src backend.ProgramSource) (backend.ProgramHandle, error) {
	if src.Module == nil {
		return 0, fmt.Errorf("cpu: program %s has no reflection", src.Label)
	}
	if src.Host == nil {
		return 0, fmt.Errorf("cpu: program %s: %w", src.Label, ErrNoHost)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	h := backend.ProgramHandle(d.next.Add(1))
	d.programs[h] = &program{src: src, workgroupSize: src.Module.WorkgroupSize}
	d.log.Debug("compiled program", "label", src.Label, "handle", h, "workgroup_size", src.Module.WorkgroupSize)
	return h, nil
}

// ReleaseProgram frees the program.
func (d *Device) ReleaseProgram(h backend.ProgramHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.programs, h)
}

// Submit enqueues dispatch and returns immediately. Dispatches execute one
// at a time in submission order.
func (d *Device) Submit(dispatch backend.Dispatch, done func(error)) error {
	err := d.queue.Push(func() {
		err := d.execute(dispatch)
		if err != nil {
			d.log.Warn("dispatch failed", "label", dispatch.Label, "error", err)
		}
		done(err)
	})
	if err != nil {
		return fmt.Errorf("cpu: %w", err)
	}
	return nil
}

func (d *Device) execute(dispatch backend.Dispatch) error {
	d.mu.RLock()
	prog, ok := d.programs[dispatch.Program]
	if !ok {
		d.mu.RUnlock()
		return fmt.Errorf("%w: program %d", backend.ErrInvalidHandle, dispatch.Program)
	}

	bindings := backend.NewBindings(prog.src.Module.NumSlots(), dispatch.Params)
	for _, bb := range dispatch.Bindings {
		buf, err := d.lookup(bb.Buffer, bb.Offset, bb.Size)
		if err != nil {
			d.mu.RUnlock()
			return err
		}
		bindings.Set(bb.Slot, bb.Type, buf)
	}
	d.mu.RUnlock()

	wg := prog.workgroupSize
	gx, gy, gz := int(dispatch.Grid[0]), int(dispatch.Grid[1]), int(dispatch.Grid[2])
	host := prog.src.Host

	return parallel.For(gx*gy*gz, func(g int) error {
		x0 := (g % gx) * wg[0]
		y0 := (g / gx % gy) * wg[1]
		z0 := (g / (gx * gy)) * wg[2]
		for lz := 0; lz < wg[2]; lz++ {
			for ly := 0; ly < wg[1]; ly++ {
				for lx := 0; lx < wg[0]; lx++ {
					//nolint:gosec // G115: grid coordinates fit in u32 like WebGPU's builtin
					id := [3]uint32{uint32(x0 + lx), uint32(y0 + ly), uint32(z0 + lz)}
					if err := host(id, bindings); err != nil {
						return fmt.Errorf("%s: invocation %v: %w", dispatch.Label, id, err)
					}
				}
			}
		}
		return nil
	}, d.par)
}

// Release drains the queue and frees every buffer and program.
func (d *Device) Release() {
	d.queue.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = make(map[backend.BufferHandle][]byte)
	d.programs = make(map[backend.ProgramHandle]*program)
	d.used = 0
}

// Stats reports the bytes currently allocated.
func (d *Device) Stats() backend.DeviceStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return backend.DeviceStats{BytesInUse: d.used}
}
