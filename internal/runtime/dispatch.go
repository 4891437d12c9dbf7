package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/born-ml/gpurt/internal/backend"
)

// Completion is the one-shot signal of a dispatch. The device signals it
// exactly once; any number of goroutines may wait on it.
type Completion struct {
	kernel    KernelID
	submitted time.Time

	once    sync.Once
	done    chan struct{}
	err     error
	elapsed time.Duration
}

func newCompletion(k KernelID) *Completion {
	return &Completion{
		kernel:    k,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// signal records err and wakes every waiter. Later calls are ignored.
func (c *Completion) signal(err error) {
	c.once.Do(func() {
		c.err = err
		c.elapsed = time.Since(c.submitted)
		close(c.done)
	})
}

// Kernel returns the ID of the dispatched kernel.
func (c *Completion) Kernel() KernelID { return c.kernel }

// Done returns a channel that is closed when the dispatch has completed.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Signaled reports whether the dispatch has completed, without blocking.
func (c *Completion) Signaled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Err returns the device error of a completed dispatch, or nil.
func (c *Completion) Err() error {
	if !c.Signaled() {
		return nil
	}
	return c.err
}

// Elapsed returns the time from submission to completion, or zero while
// the dispatch is in flight.
func (c *Completion) Elapsed() time.Duration {
	if !c.Signaled() {
		return 0
	}
	return c.elapsed
}

// Wait blocks until the dispatch completes or ctx is done, and returns the
// dispatch error. A ctx deadline is reported as ErrTimeout. Giving up does
// not cancel the device work.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	default:
	}

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: kernel %d after %s", ErrTimeout, c.kernel, time.Since(c.submitted).Round(time.Millisecond))
		}
		return ctx.Err()
	}
}

// WaitTimeout waits at most d. Zero or negative waits forever.
func (c *Completion) WaitTimeout(d time.Duration) error {
	if d <= 0 {
		return c.Wait(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Wait(ctx)
}

// Dispatch submits k and returns immediately. The bound tensors are held
// until the Completion is signaled. A kernel can be dispatched once.
func (c *Context) Dispatch(k *Kernel) (*Completion, error) {
	if k == nil {
		return nil, fmt.Errorf("gpurt: nil kernel")
	}
	if k.ctx != c {
		return nil, fmt.Errorf("%w: kernel %d", ErrForeignResource, k.id)
	}

	// Holding mu keeps Release from starting its wait between the live
	// check and inflight.Add.
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkLiveLocked(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	// A completed kernel has freed its program too, so state goes first.
	switch {
	case k.state != KernelCreated:
		return nil, fmt.Errorf("%w: kernel %d is %s", ErrAlreadyDispatched, k.id, k.state)
	case k.released:
		return nil, fmt.Errorf("%w: kernel %d", ErrReleased, k.id)
	}

	for i, b := range k.bindings {
		if err := b.Tensor.acquire(); err != nil {
			for _, prev := range k.bindings[:i] {
				prev.Tensor.release()
			}
			return nil, fmt.Errorf("gpurt: dispatch %s: slot %d: %w", k.code.label(), b.slot, err)
		}
	}

	d := backend.Dispatch{
		Label:    k.code.label(),
		Program:  k.program,
		Bindings: make([]backend.BufferBinding, len(k.bindings)),
		Params:   k.params,
		Grid:     k.grid,
	}
	for i, b := range k.bindings {
		d.Bindings[i] = backend.BufferBinding{
			Slot:   b.slot,
			Buffer: b.Tensor.buffer,
			Offset: b.Offset,
			Size:   uint64(b.Tensor.ByteSize()) - b.Offset, //nolint:gosec // G115: sizes are positive
			Type:   b.Tensor.numType,
		}
	}

	comp := newCompletion(k.id)
	k.state = KernelSubmitted
	c.inflight.Add(1)

	if err := c.device.Submit(d, func(err error) { c.complete(k, comp, err) }); err != nil {
		k.state = KernelCreated
		for _, b := range k.bindings {
			b.Tensor.release()
		}
		c.inflight.Done()
		return nil, fmt.Errorf("gpurt: dispatch %s: %w", k.code.label(), err)
	}

	c.trackDispatch()
	c.log.Debug("kernel dispatched", "id", k.id, "name", d.Label, "grid", d.Grid)
	return comp, nil
}

// complete runs on the device's completion goroutine, once per dispatch.
func (c *Context) complete(k *Kernel, comp *Completion, err error) {
	for _, b := range k.bindings {
		b.Tensor.release()
	}

	k.mu.Lock()
	k.state = KernelCompleted
	k.mu.Unlock()
	k.free()

	c.mu.Lock()
	delete(c.kernels, k.id)
	c.mu.Unlock()

	c.trackCompletion(err)
	if err != nil {
		c.log.Warn("dispatch failed", "id", k.id, "name", k.code.label(), "error", err)
		err = fmt.Errorf("gpurt: dispatch %s: %w", k.code.label(), err)
	} else {
		c.log.Debug("dispatch completed", "id", k.id, "name", k.code.label(), "elapsed", time.Since(comp.submitted))
	}

	comp.signal(err)
	c.inflight.Done()
}

// Run dispatches k and waits for it, bounded by the Context's dispatch
// timeout and by ctx.
func (c *Context) Run(ctx context.Context, k *Kernel) error {
	comp, err := c.Dispatch(k)
	if err != nil {
		return err
	}
	if c.cfg.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.dispatchTimeout)
		defer cancel()
	}
	return comp.Wait(ctx)
}
