package runtime

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/tensor"
)

const copySource = `
@group(0) @binding(0) var<storage, read> inp: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{precision}}>;
@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < arrayLength(&inp)) {
        out[i] = inp[i];
    }
}
`

const incSource = `
@group(0) @binding(0) var<storage, read_write> buf: array<{{precision}}>;
@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < arrayLength(&buf)) {
        buf[i] = buf[i] + 1.0;
    }
}
`

func copyHost(id [3]uint32, b *backend.Bindings) error {
	i := int(id[0])
	if i < b.Len(0) {
		b.Store(1, i, b.Load(0, i))
	}
	return nil
}

func incHost(id [3]uint32, b *backend.Bindings) error {
	i := int(id[0])
	if i < b.Len(0) {
		b.Store(0, i, b.Load(0, i)+1)
	}
	return nil
}

func copyCode(wg int) KernelCode {
	return NewKernelCode("copy", copySource, wg, tensor.F32).WithHost(copyHost)
}

func incCode(wg int) KernelCode {
	return NewKernelCode("inc", incSource, wg, tensor.F32).WithHost(incHost)
}

// gateCode returns a kernel whose single invocation blocks until gate is closed.
func gateCode(gate <-chan struct{}) KernelCode {
	return NewKernelCode("gate", incSource, 1, tensor.F32).WithHost(func(id [3]uint32, b *backend.Bindings) error {
		<-gate
		return incHost(id, b)
	})
}

func newTestContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	ctx, err := New(append([]Option{WithDevice("cpu"), WithWorkers(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(ctx.Release)
	return ctx
}

func mustTensor(t *testing.T, ctx *Context, nt tensor.NumType, dims ...int) *Tensor {
	t.Helper()
	tt, err := ctx.CreateTensor(tensor.MustShape(dims...), nt)
	require.NoError(t, err)
	return tt
}

func TestNewDevice(t *testing.T) {
	ctx := newTestContext(t)
	assert.Equal(t, "cpu", ctx.DeviceName())
	assert.Contains(t, ctx.DeviceInfo(), "CPU")
	assert.Len(t, ctx.ID(), 36)

	_, err := New(WithDevice("no-such-device"))
	assert.ErrorIs(t, err, ErrNoDevice)

	auto, err := New(WithDevice(DeviceAuto))
	require.NoError(t, err, "auto falls back to the software device")
	auto.Release()
}

var (
	recordOnce sync.Once
	recorded   = make(chan backend.Config, 1)
)

func TestOptionsReachDevice(t *testing.T) {
	recordOnce.Do(func() {
		backend.Register("recording", func(cfg backend.Config) (backend.Device, error) {
			recorded <- cfg
			return nil, errors.New("recording only")
		})
	})

	_, err := New(WithDevice("recording"), WithWorkers(3), WithMaxBatch(7), WithMemoryLimit(1<<20))
	require.ErrorIs(t, err, ErrNoDevice)

	cfg := <-recorded
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 7, cfg.MaxBatch)
	assert.Equal(t, uint64(1<<20), cfg.MemoryLimit)
	assert.NotNil(t, cfg.Logger)
}

func TestRoundTrip(t *testing.T) {
	ctx := newTestContext(t)

	t.Run("f32", func(t *testing.T) {
		in := []float32{0, -1.5, float32(math.Inf(1)), math.Float32frombits(0x7fc00001), math.SmallestNonzeroFloat32}
		x := mustTensor(t, ctx, tensor.F32, len(in))
		require.NoError(t, ToGPU(ctx, x, in))
		out := make([]float32, len(in))
		require.NoError(t, ToCPU(ctx, x, out))
		assert.Equal(t, tensor.AsBytes(in), tensor.AsBytes(out), "bit-identical")
	})

	t.Run("i32", func(t *testing.T) {
		in := []int32{math.MinInt32, -1, 0, 1, math.MaxInt32}
		x := mustTensor(t, ctx, tensor.I32, 5)
		require.NoError(t, ToGPU(ctx, x, in))
		out := make([]int32, 5)
		require.NoError(t, ToCPU(ctx, x, out))
		assert.Equal(t, in, out)
	})

	t.Run("u32", func(t *testing.T) {
		in := []uint32{0, 1, math.MaxUint32}
		x := mustTensor(t, ctx, tensor.U32, 3)
		require.NoError(t, ToGPU(ctx, x, in))
		out := make([]uint32, 3)
		require.NoError(t, ToCPU(ctx, x, out))
		assert.Equal(t, in, out)
	})

	t.Run("f16", func(t *testing.T) {
		in := []float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-0.5), float16.Frombits(0x7c01)}
		x := mustTensor(t, ctx, tensor.F16, 3)
		assert.Equal(t, 6, x.ByteSize())
		require.NoError(t, ToGPU(ctx, x, in))
		out := make([]float16.Float16, 3)
		require.NoError(t, ToCPU(ctx, x, out))
		assert.Equal(t, in, out)
	})

	t.Run("multi-dimensional", func(t *testing.T) {
		x := mustTensor(t, ctx, tensor.F32, 2, 3, 4)
		assert.Equal(t, 24, x.NumElements())
		in := make([]float32, 24)
		for i := range in {
			in[i] = float32(i)
		}
		require.NoError(t, ToGPU(ctx, x, in))
		out := make([]float32, 10)
		require.NoError(t, ToCPU(ctx, x, out), "partial reads copy a prefix")
		assert.Equal(t, in[:10], out)
	})
}

func TestTransferErrors(t *testing.T) {
	ctx := newTestContext(t)
	x := mustTensor(t, ctx, tensor.F32, 4)

	assert.ErrorIs(t, ToGPU(ctx, x, []float32{1, 2, 3}), ErrHostBufferSize)
	assert.ErrorIs(t, ToGPU(ctx, x, []int32{1, 2, 3, 4}), ErrTypeMismatch)
	assert.ErrorIs(t, ToCPU(ctx, x, make([]float32, 5)), ErrHostBufferSize)
	assert.ErrorIs(t, ToCPU(ctx, x, make([]uint32, 4)), ErrTypeMismatch)
	assert.ErrorIs(t, ctx.WriteBytes(x, make([]byte, 15)), ErrHostBufferSize)

	other := newTestContext(t)
	assert.ErrorIs(t, ToGPU(other, x, []float32{1, 2, 3, 4}), ErrForeignResource)

	require.NoError(t, x.Release())
	require.NoError(t, x.Release(), "release is idempotent")
	assert.ErrorIs(t, ToGPU(ctx, x, []float32{1, 2, 3, 4}), ErrReleased)
	assert.ErrorIs(t, ToCPU(ctx, x, make([]float32, 4)), ErrReleased)

	_, err := ctx.CreateTensor(tensor.Shape{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.F32)
	assert.ErrorIs(t, err, tensor.ErrRankOverflow)
	_, err = ctx.CreateTensor(tensor.Shape{4, 0}, tensor.F32)
	assert.Error(t, err)
	_, err = ctx.CreateTensor(tensor.Shape{1<<61 + 1}, tensor.F32)
	assert.ErrorIs(t, err, tensor.ErrSizeOverflow)
	_, err = ctx.CreateTensor(tensor.Shape{1 << 45}, tensor.U32)
	assert.ErrorIs(t, err, backend.ErrOutOfMemory)
}

func TestDispatchOrdering(t *testing.T) {
	ctx := newTestContext(t)

	const n, rounds = 100, 50
	buf := mustTensor(t, ctx, tensor.F32, n)

	completions := make([]*Completion, rounds)
	for r := range completions {
		k, err := ctx.CreateKernel(incCode(32), []*Tensor{buf}, tensor.Grid1D(n, 32), nil)
		require.NoError(t, err)
		completions[r], err = ctx.Dispatch(k)
		require.NoError(t, err)
	}

	// The read is ordered after every dispatch submitted before it.
	out := make([]float32, n)
	require.NoError(t, ToCPU(ctx, buf, out))
	for i := range out {
		assert.Equal(t, float32(rounds), out[i])
	}
	for _, c := range completions {
		assert.True(t, c.Signaled())
		assert.NoError(t, c.Err())
	}
}

func TestCompletionSignaledOnce(t *testing.T) {
	ctx := newTestContext(t)
	gate := make(chan struct{})
	buf := mustTensor(t, ctx, tensor.F32, 1)

	k, err := ctx.CreateKernel(gateCode(gate), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	comp, err := ctx.Dispatch(k)
	require.NoError(t, err)
	assert.Equal(t, KernelSubmitted, k.State())
	assert.False(t, comp.Signaled())
	assert.Nil(t, comp.Err())
	assert.Zero(t, comp.Elapsed())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, comp.Wait(context.Background()))
		}()
	}
	close(gate)
	wg.Wait()

	assert.True(t, comp.Signaled())
	assert.Equal(t, KernelCompleted, k.State())
	assert.Equal(t, k.ID(), comp.Kernel())

	// Waiting after the signal returns at once, even with a dead context.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, comp.Wait(canceled))
	assert.NoError(t, comp.WaitTimeout(time.Nanosecond))
	select {
	case <-comp.Done():
	default:
		t.Fatal("Done channel not closed")
	}

	// The device callback is idempotent.
	comp.signal(errors.New("late"))
	assert.NoError(t, comp.Err())
}

func TestAlreadyDispatched(t *testing.T) {
	ctx := newTestContext(t)
	buf := mustTensor(t, ctx, tensor.F32, 4)

	k, err := ctx.CreateKernel(incCode(4), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Run(context.Background(), k))

	_, err = ctx.Dispatch(k)
	assert.ErrorIs(t, err, ErrAlreadyDispatched)
	_, err = ctx.Dispatch(k)
	assert.ErrorIs(t, err, ErrAlreadyDispatched, "the error is stable across retries")
	assert.NoError(t, k.Release(), "releasing a completed kernel is a no-op")
	_, err = ctx.Dispatch(k)
	assert.ErrorIs(t, err, ErrAlreadyDispatched)

	unused, err := ctx.CreateKernel(incCode(4), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	require.NoError(t, unused.Release())
	_, err = ctx.Dispatch(unused)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, KernelCreated, unused.State())
}

func TestReleaseRacesDispatch(t *testing.T) {
	ctx := newTestContext(t)
	buf := mustTensor(t, ctx, tensor.F32, 4)

	for range 50 {
		k, err := ctx.CreateKernel(incCode(4), []*Tensor{buf}, tensor.MustShape(1), nil)
		require.NoError(t, err)

		var (
			wg         sync.WaitGroup
			comp       *Completion
			dispErr    error
			releaseErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			comp, dispErr = ctx.Dispatch(k)
		}()
		go func() {
			defer wg.Done()
			releaseErr = k.Release()
		}()
		wg.Wait()

		if dispErr != nil {
			// Release won: the kernel never reached the device.
			require.ErrorIs(t, dispErr, ErrReleased)
			require.NoError(t, releaseErr)
			continue
		}
		// Dispatch won: Release either saw it in flight or ran after completion.
		if releaseErr != nil {
			require.ErrorIs(t, releaseErr, ErrKernelBusy)
		}
		require.NoError(t, comp.Wait(context.Background()))
		assert.Equal(t, KernelCompleted, k.State())
	}
}

func TestTensorBusy(t *testing.T) {
	ctx := newTestContext(t)
	gate := make(chan struct{})
	buf := mustTensor(t, ctx, tensor.F32, 1)

	k, err := ctx.CreateKernel(gateCode(gate), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	comp, err := ctx.Dispatch(k)
	require.NoError(t, err)

	assert.ErrorIs(t, buf.Release(), ErrTensorBusy)
	assert.ErrorIs(t, k.Release(), ErrKernelBusy)

	close(gate)
	require.NoError(t, comp.Wait(context.Background()))
	require.NoError(t, buf.Release())
	require.NoError(t, k.Release())
}

func TestRunTimeout(t *testing.T) {
	ctx := newTestContext(t, WithDispatchTimeout(20*time.Millisecond))
	gate := make(chan struct{})
	defer close(gate)
	buf := mustTensor(t, ctx, tensor.F32, 1)

	k, err := ctx.CreateKernel(gateCode(gate), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Run(context.Background(), k), ErrTimeout)
	assert.Equal(t, KernelSubmitted, k.State(), "a timeout does not cancel device work")
}

func TestHostError(t *testing.T) {
	ctx := newTestContext(t)
	buf := mustTensor(t, ctx, tensor.F32, 1)

	boom := errors.New("boom")
	code := NewKernelCode("fail", incSource, 1, tensor.F32).WithHost(func([3]uint32, *backend.Bindings) error {
		return boom
	})
	k, err := ctx.CreateKernel(code, []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)

	err = ctx.Run(context.Background(), k)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(1), ctx.Stats().Failed)
}

func TestCreateKernelErrors(t *testing.T) {
	ctx := newTestContext(t)
	a := mustTensor(t, ctx, tensor.F32, 8)
	b := mustTensor(t, ctx, tensor.F32, 8)
	grid := tensor.MustShape(1)

	_, err := ctx.CreateKernel(copyCode(8), []*Tensor{a}, grid, nil)
	assert.ErrorIs(t, err, ErrBindingCount)

	_, err = ctx.CreateKernel(copyCode(8), []*Tensor{a, b}, grid, []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrParams)

	typo := NewKernelCode("typo", `@group(0) @binding(0) var<storage, read_write> x: array<{{precison}}>;`, 8, tensor.F32)
	_, err = ctx.CreateKernel(typo, []*Tensor{a}, grid, nil)
	assert.ErrorIs(t, err, ErrUnresolvedToken)
	assert.Contains(t, err.Error(), "{{precision}}")

	fixed := NewKernelCode("fixed", `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;
@compute @workgroup_size(64)
fn main() {}
`, 32, tensor.F32).WithHost(incHost)
	_, err = ctx.CreateKernel(fixed, []*Tensor{a}, grid, nil)
	assert.ErrorIs(t, err, ErrReflect)

	for _, g := range []tensor.Shape{{}, {0}, {1, 1, 1, 1}, {2, -1}} {
		_, err = ctx.CreateKernel(copyCode(8), []*Tensor{a, b}, g, nil)
		assert.ErrorIs(t, err, ErrInvalidGrid, "grid %v", g)
	}

	noHost := NewKernelCode("nohost", copySource, 8, tensor.F32)
	_, err = ctx.CreateKernel(noHost, []*Tensor{a, b}, grid, nil)
	assert.ErrorIs(t, err, ErrCompile)

	other := newTestContext(t)
	foreign := mustTensor(t, other, tensor.F32, 8)
	_, err = ctx.CreateKernel(copyCode(8), []*Tensor{a, foreign}, grid, nil)
	assert.ErrorIs(t, err, ErrForeignResource)

	k, err := other.CreateKernel(copyCode(8), []*Tensor{foreign, foreign}, grid, nil)
	require.NoError(t, err)
	_, err = ctx.Dispatch(k)
	assert.ErrorIs(t, err, ErrForeignResource)
}

const aliasSource = `
@group(0) @binding(0) var<storage, read_write> inp: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> dummy: array<{{precision}}>;
@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < arrayLength(&inp)) {
        out[i] = inp[i];
    }
}
`

func TestKernelBuilder(t *testing.T) {
	ctx := newTestContext(t)
	in := mustTensor(t, ctx, tensor.F32, 4)
	out := mustTensor(t, ctx, tensor.F32, 4)
	require.NoError(t, ToGPU(ctx, in, []float32{1, 2, 3, 4}))

	code := NewKernelCode("alias", aliasSource, 4, tensor.F32).WithHost(copyHost)
	grid := tensor.MustShape(1)

	// An alias binds the slot it shares.
	k, err := ctx.NewKernelBuilder(code).Bind("dummy", out).Bind("inp", in).Grid(grid).Build()
	require.NoError(t, err)
	bindings := k.Bindings()
	require.Len(t, bindings, 2)
	assert.Same(t, in, bindings[0].Tensor)
	assert.Same(t, out, bindings[1].Tensor)
	require.NoError(t, ctx.Run(context.Background(), k))

	got := make([]float32, 4)
	require.NoError(t, ToCPU(ctx, out, got))
	assert.Equal(t, []float32{1, 2, 3, 4}, got)

	_, err = ctx.NewKernelBuilder(code).Bind("inpt", in).Bind("out", out).Grid(grid).Build()
	assert.ErrorIs(t, err, ErrUnknownBinding)
	assert.Contains(t, err.Error(), `did you mean "inp"?`)

	_, err = ctx.NewKernelBuilder(code).Bind("inp", in).Bind("out", out).Bind("dummy", out).Grid(grid).Build()
	assert.ErrorIs(t, err, ErrBindingCount)

	_, err = ctx.NewKernelBuilder(code).Bind("inp", in).Grid(grid).Build()
	assert.ErrorIs(t, err, ErrBindingCount)
	assert.Contains(t, err.Error(), "slots 1 not bound")

	_, err = ctx.NewKernelBuilder(code).Bind("inp", in).Bind("out", out).Build()
	assert.ErrorIs(t, err, ErrInvalidGrid, "grid is required")
}

func TestBindingView(t *testing.T) {
	ctx := newTestContext(t)
	in := mustTensor(t, ctx, tensor.F32, 6)
	out := mustTensor(t, ctx, tensor.F32, 6)
	require.NoError(t, ToGPU(ctx, in, []float32{1, 2, 3, 4, 5, 6}))

	k, err := ctx.CreateKernelViews(copyCode(8), []Binding{{Tensor: in, Offset: 8}, {Tensor: out}}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Run(context.Background(), k))

	got := make([]float32, 6)
	require.NoError(t, ToCPU(ctx, out, got))
	assert.Equal(t, []float32{3, 4, 5, 6, 0, 0}, got)

	_, err = ctx.CreateKernelViews(copyCode(8), []Binding{{Tensor: in, Offset: 3}, {Tensor: out}}, tensor.MustShape(1), nil)
	assert.ErrorIs(t, err, ErrInvalidOffset)
	_, err = ctx.CreateKernelViews(copyCode(8), []Binding{{Tensor: in, Offset: 24}, {Tensor: out}}, tensor.MustShape(1), nil)
	assert.ErrorIs(t, err, ErrInvalidOffset)
}

func TestContextRelease(t *testing.T) {
	ctx, err := New(WithDevice("cpu"))
	require.NoError(t, err)

	gate := make(chan struct{})
	buf, err := ctx.CreateTensor(tensor.MustShape(1), tensor.F32)
	require.NoError(t, err)
	k, err := ctx.CreateKernel(gateCode(gate), []*Tensor{buf}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	comp, err := ctx.Dispatch(k)
	require.NoError(t, err)

	released := make(chan struct{})
	go func() {
		ctx.Release()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Release returned with a dispatch in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-released
	assert.True(t, comp.Signaled())

	_, err = ctx.CreateTensor(tensor.MustShape(1), tensor.F32)
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, ToGPU(ctx, buf, []float32{1}), ErrReleased)
	ctx.Release()
}

func TestStats(t *testing.T) {
	ctx := newTestContext(t)

	a := mustTensor(t, ctx, tensor.F32, 10)
	_ = mustTensor(t, ctx, tensor.F16, 3)

	s := ctx.Stats()
	assert.Equal(t, "cpu", s.Device)
	assert.Equal(t, 2, s.LiveTensors)
	assert.Equal(t, uint64(48), s.BytesInUse)
	assert.Equal(t, uint64(48), s.DeviceStats.BytesInUse)
	assert.Equal(t, uint64(2), s.Allocations)

	k, err := ctx.CreateKernel(incCode(16), []*Tensor{a}, tensor.MustShape(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ctx.Stats().LiveKernels)
	require.NoError(t, ctx.Run(context.Background(), k))

	require.NoError(t, a.Release())
	s = ctx.Stats()
	assert.Equal(t, uint64(8), s.BytesInUse)
	assert.Equal(t, uint64(48), s.PeakBytes)
	assert.Equal(t, uint64(1), s.Dispatches)
	assert.Equal(t, uint64(1), s.Completed)
	assert.Equal(t, 0, s.LiveKernels, "completed kernels leave the registry")
	assert.Equal(t, 1, s.LiveTensors)
}
