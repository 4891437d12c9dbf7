package runtime

import (
	"fmt"
	"sync"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/tensor"
)

// Tensor is a device-resident buffer with a shape and an element type.
// It is owned by the Context that created it.
type Tensor struct {
	id      TensorID
	ctx     *Context
	shape   tensor.Shape
	numType tensor.NumType
	buffer  backend.BufferHandle
	size    uint64 // allocated bytes, 4-byte aligned

	mu       sync.Mutex
	idle     *sync.Cond // signaled when pending drops to zero
	pending  int        // in-flight dispatches binding this tensor
	released bool
}

// CreateTensor allocates a zeroed device buffer for shape elements of nt.
func (c *Context) CreateTensor(shape tensor.Shape, nt tensor.NumType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("gpurt: create tensor: %w", err)
	}
	if shape.NumElements() == 0 {
		return nil, fmt.Errorf("gpurt: create tensor: shape %v has no elements", shape)
	}
	if nt.String() == "unknown" {
		return nil, fmt.Errorf("gpurt: create tensor: %w: %d", ErrTypeMismatch, nt)
	}
	n, err := shape.ByteSize(nt)
	if err != nil {
		return nil, fmt.Errorf("gpurt: create tensor: %w", err)
	}
	if err := c.checkLive(); err != nil {
		return nil, err
	}

	byteSize := uint64(n) //nolint:gosec // G115: validated positive
	size := max((byteSize+3)&^3, 4)

	h, err := c.device.CreateBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("gpurt: create tensor %v %s: %w", shape, nt, err)
	}

	t := &Tensor{
		id:      TensorID(c.newID()),
		ctx:     c,
		shape:   shape.Clone(),
		numType: nt,
		buffer:  h,
		size:    size,
	}
	t.idle = sync.NewCond(&t.mu)

	c.mu.Lock()
	if err := c.checkLiveLocked(); err != nil {
		c.mu.Unlock()
		c.device.ReleaseBuffer(h)
		return nil, err
	}
	c.tensors[t.id] = t
	c.mu.Unlock()

	c.trackAllocation(size)
	c.log.Debug("tensor created", "id", t.id, "shape", shape, "type", nt, "bytes", size)
	return t, nil
}

// ID returns the tensor's identifier.
func (t *Tensor) ID() TensorID { return t.id }

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() tensor.Shape { return t.shape.Clone() }

// NumType returns the element type.
func (t *Tensor) NumType() tensor.NumType { return t.numType }

// NumElements returns the number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// ByteSize returns the size of the tensor's data in bytes.
func (t *Tensor) ByteSize() int { return t.NumElements() * t.numType.Size() }

// String returns a short description.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%d, %v, %s)", t.id, t.shape, t.numType)
}

// Release frees the tensor's buffer before its Context is released.
// It fails with ErrTensorBusy while an in-flight dispatch binds the tensor.
// Releasing twice is a no-op.
func (t *Tensor) Release() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return nil
	}
	if t.pending > 0 {
		n := t.pending
		t.mu.Unlock()
		return fmt.Errorf("%w: tensor %d (%d dispatches)", ErrTensorBusy, t.id, n)
	}
	t.released = true
	t.mu.Unlock()

	c := t.ctx
	c.mu.Lock()
	delete(c.tensors, t.id)
	c.mu.Unlock()

	t.freeBuffer()
	return nil
}

// free releases the tensor on Context release, after all dispatches have
// completed.
func (t *Tensor) free() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()

	t.freeBuffer()
}

func (t *Tensor) freeBuffer() {
	t.ctx.device.ReleaseBuffer(t.buffer)
	t.ctx.trackRelease(t.size)
	t.ctx.log.Debug("tensor released", "id", t.id)
}

func (t *Tensor) checkLive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return fmt.Errorf("%w: tensor %d", ErrReleased, t.id)
	}
	return nil
}

// acquire marks the tensor as bound to an in-flight dispatch.
func (t *Tensor) acquire() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return fmt.Errorf("%w: tensor %d", ErrReleased, t.id)
	}
	t.pending++
	return nil
}

func (t *Tensor) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if t.pending == 0 {
		t.idle.Broadcast()
	}
}

// waitIdle blocks until no in-flight dispatch binds the tensor, so host
// transfers are ordered after the dispatches submitted before them.
func (t *Tensor) waitIdle() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.pending > 0 {
		t.idle.Wait()
	}
	if t.released {
		return fmt.Errorf("%w: tensor %d", ErrReleased, t.id)
	}
	return nil
}

// WriteBytes uploads raw element data. len(data) must equal t.ByteSize().
func (c *Context) WriteBytes(t *Tensor, data []byte) error {
	if err := c.own(t); err != nil {
		return err
	}
	if len(data) != t.ByteSize() {
		return fmt.Errorf("%w: %d bytes for %v", ErrHostBufferSize, len(data), t)
	}
	if err := t.waitIdle(); err != nil {
		return err
	}
	if err := c.device.WriteBuffer(t.buffer, 0, data); err != nil {
		return fmt.Errorf("gpurt: write %v: %w", t, err)
	}
	return nil
}

// ReadBytes copies the first n bytes of the tensor back to the host. It
// waits for in-flight dispatches binding the tensor.
func (c *Context) ReadBytes(t *Tensor, n int) ([]byte, error) {
	if err := c.own(t); err != nil {
		return nil, err
	}
	if n < 0 || n > t.ByteSize() {
		return nil, fmt.Errorf("%w: %d bytes from %v", ErrHostBufferSize, n, t)
	}
	if err := t.waitIdle(); err != nil {
		return nil, err
	}
	data, err := c.device.ReadBuffer(t.buffer, 0, uint64(n)) //nolint:gosec // G115: checked above
	if err != nil {
		return nil, fmt.Errorf("gpurt: read %v: %w", t, err)
	}
	return data, nil
}

// ToGPU uploads data into t. T must match the tensor's element type and
// len(data) must equal its element count.
func ToGPU[T tensor.Element](c *Context, t *Tensor, data []T) error {
	if err := c.own(t); err != nil {
		return err
	}
	if nt := tensor.TypeOf[T](); nt != t.numType {
		return fmt.Errorf("%w: %s data for %v", ErrTypeMismatch, nt, t)
	}
	if len(data) != t.NumElements() {
		return fmt.Errorf("%w: %d elements for %v", ErrHostBufferSize, len(data), t)
	}
	return c.WriteBytes(t, tensor.AsBytes(data))
}

// ToCPU copies len(out) elements of t into out. It blocks until the data
// is on the host.
func ToCPU[T tensor.Element](c *Context, t *Tensor, out []T) error {
	if err := c.own(t); err != nil {
		return err
	}
	if nt := tensor.TypeOf[T](); nt != t.numType {
		return fmt.Errorf("%w: %s buffer for %v", ErrTypeMismatch, nt, t)
	}
	if len(out) > t.NumElements() {
		return fmt.Errorf("%w: %d elements from %v", ErrHostBufferSize, len(out), t)
	}
	data, err := c.ReadBytes(t, len(out)*t.numType.Size())
	if err != nil {
		return err
	}
	tensor.CopyFromBytes(out, data)
	return nil
}

// ToGPUFloat32 converts data to the tensor's element type and uploads it.
// This is how f16 tensors are filled from float32 host data.
func (c *Context) ToGPUFloat32(t *Tensor, data []float32) error {
	if err := c.own(t); err != nil {
		return err
	}
	if len(data) != t.NumElements() {
		return fmt.Errorf("%w: %d elements for %v", ErrHostBufferSize, len(data), t)
	}
	return c.WriteBytes(t, tensor.EncodeFloat32(t.numType, data))
}

// ToCPUFloat32 reads len(out) elements of t converted to float32.
func (c *Context) ToCPUFloat32(t *Tensor, out []float32) error {
	if err := c.own(t); err != nil {
		return err
	}
	if len(out) > t.NumElements() {
		return fmt.Errorf("%w: %d elements from %v", ErrHostBufferSize, len(out), t)
	}
	data, err := c.ReadBytes(t, len(out)*t.numType.Size())
	if err != nil {
		return err
	}
	tensor.DecodeFloat32(t.numType, data, out)
	return nil
}
