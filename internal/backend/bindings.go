package backend

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/gpurt/internal/tensor"
)

type view struct {
	data []byte
	typ  tensor.NumType
	n    int
}

// Bindings gives a host kernel access to the buffers of one dispatch,
// addressed by binding slot like the WGSL source addresses them.
// Out-of-range loads return 0 and out-of-range stores are dropped, matching
// WebGPU's robust buffer access.
type Bindings struct {
	views  []view
	params []byte
}

// NewBindings creates an empty binding set for slots [0, numSlots).
func NewBindings(numSlots int, params []byte) *Bindings {
	return &Bindings{views: make([]view, numSlots), params: params}
}

// Set binds data, interpreted as elements of typ, to slot.
func (b *Bindings) Set(slot int, typ tensor.NumType, data []byte) {
	if slot >= len(b.views) {
		grown := make([]view, slot+1)
		copy(grown, b.views)
		b.views = grown
	}
	b.views[slot] = view{data: data, typ: typ, n: len(data) / typ.Size()}
}

// Len is arrayLength() of the buffer bound to slot.
func (b *Bindings) Len(slot int) int {
	if slot < 0 || slot >= len(b.views) {
		return 0
	}
	return b.views[slot].n
}

// Type returns the element type bound to slot. Slots outside the binding
// set report an invalid type whose String is "unknown".
func (b *Bindings) Type(slot int) tensor.NumType {
	if slot < 0 || slot >= len(b.views) {
		return tensor.NumType(-1)
	}
	return b.views[slot].typ
}

// Load reads element i of slot as float32.
func (b *Bindings) Load(slot, i int) float32 {
	if i < 0 || i >= b.Len(slot) {
		return 0
	}
	v := b.views[slot]
	return tensor.LoadFloat32(v.typ, v.data, i)
}

// Store writes v to element i of slot.
func (b *Bindings) Store(slot, i int, v float32) {
	if i < 0 || i >= b.Len(slot) {
		return
	}
	w := b.views[slot]
	tensor.StoreFloat32(w.typ, w.data, i, v)
}

// Params returns the uniform bytes of the dispatch.
func (b *Bindings) Params() []byte {
	return b.params
}

// ParamU32 reads the i-th 32-bit word of the uniform block as u32.
func (b *Bindings) ParamU32(i int) uint32 {
	if (i+1)*4 > len(b.params) {
		return 0
	}
	return binary.LittleEndian.Uint32(b.params[i*4:])
}

// ParamF32 reads the i-th 32-bit word of the uniform block as f32.
func (b *Bindings) ParamF32(i int) float32 {
	return math.Float32frombits(b.ParamU32(i))
}
