package backend

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gpurt/internal/tensor"
)

func TestRegistry(t *testing.T) {
	called := false
	Register("test-device", func(cfg Config) (Device, error) {
		called = true
		assert.NotNil(t, cfg.Logger, "Open fills in a default logger")
		return nil, ErrUnavailable
	})

	assert.Contains(t, Names(), "test-device")
	assert.Panics(t, func() {
		Register("test-device", func(Config) (Device, error) { return nil, nil })
	})

	_, err := Open("test-device", Config{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, called)

	_, err = Open("no-such-device", Config{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Push(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	q.Close()

	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Push(func() {}), ErrQueueClosed)
}

func TestQueuePushFromJob(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	require.NoError(t, q.Push(func() {
		require.NoError(t, q.Push(func() { close(done) }))
	}))
	<-done
	q.Close()
}

func TestBindings(t *testing.T) {
	in := tensor.EncodeFloat32(tensor.F32, []float32{1, 2, 3})
	out := make([]byte, 3*2)
	params := []byte{7, 0, 0, 0, 0, 0, 0x80, 0x3f}

	b := NewBindings(2, params)
	b.Set(0, tensor.F32, in)
	b.Set(1, tensor.F16, out)

	assert.Equal(t, 3, b.Len(0))
	assert.Equal(t, 3, b.Len(1))
	assert.Equal(t, 0, b.Len(5))
	assert.Equal(t, tensor.F16, b.Type(1))
	assert.Equal(t, "unknown", b.Type(5).String())
	assert.Equal(t, "unknown", b.Type(-1).String())

	b.Store(1, 2, b.Load(0, 2)*2)
	assert.Equal(t, float32(6), b.Load(1, 2))

	// Robust access: out of range loads are zero and stores are dropped.
	assert.Equal(t, float32(0), b.Load(0, 3))
	b.Store(1, 3, 1)
	b.Store(1, -1, 1)

	assert.Equal(t, uint32(7), b.ParamU32(0))
	assert.Equal(t, float32(1), b.ParamF32(1))
	assert.Equal(t, uint32(0), b.ParamU32(2))

	// Slots beyond the initial size grow the table.
	b.Set(4, tensor.U32, make([]byte, 8))
	assert.Equal(t, 2, b.Len(4))
}
