package kernels

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/runtime"
	"github.com/born-ml/gpurt/internal/tensor"
)

// AddSource computes out = a + b element-wise.
const AddSource = `
@group(0) @binding(0) var<storage, read> a: array<{{precision}}>;
@group(0) @binding(1) var<storage, read> b: array<{{precision}}>;
@group(0) @binding(2) var<storage, read_write> out: array<{{precision}}>;

@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < arrayLength(&out)) {
        out[idx] = a[idx] + b[idx];
    }
}
`

// SubSource computes out = a - b element-wise.
const SubSource = `
@group(0) @binding(0) var<storage, read> a: array<{{precision}}>;
@group(0) @binding(1) var<storage, read> b: array<{{precision}}>;
@group(0) @binding(2) var<storage, read_write> out: array<{{precision}}>;

@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < arrayLength(&out)) {
        out[idx] = a[idx] - b[idx];
    }
}
`

// ScaleSource computes out = inp * params.scale + params.shift.
const ScaleSource = `
struct Params {
    scale: f32,
    shift: f32,
}

@group(0) @binding(0) var<storage, read> inp: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{precision}}>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size({{workgroupSize}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < arrayLength(&out)) {
        out[idx] = inp[idx] * {{precision}}(params.scale) + {{precision}}(params.shift);
    }
}
`

func binaryHost(op func(x, y float32) float32) backend.HostFunc {
	return func(id [3]uint32, b *backend.Bindings) error {
		i := int(id[0])
		if i < b.Len(2) {
			b.Store(2, i, op(b.Load(0, i), b.Load(1, i)))
		}
		return nil
	}
}

func scaleHost(id [3]uint32, b *backend.Bindings) error {
	i := int(id[0])
	if i < b.Len(1) {
		b.Store(1, i, b.Load(0, i)*b.ParamF32(0)+b.ParamF32(1))
	}
	return nil
}

// Add returns the element-wise addition kernel: a, b, out.
func Add(workgroupSize int, nt tensor.NumType) runtime.KernelCode {
	return runtime.NewKernelCode("add", AddSource, workgroupSize, nt).
		WithHost(binaryHost(func(x, y float32) float32 { return x + y }))
}

// Sub returns the element-wise subtraction kernel: a, b, out.
func Sub(workgroupSize int, nt tensor.NumType) runtime.KernelCode {
	return runtime.NewKernelCode("sub", SubSource, workgroupSize, nt).
		WithHost(binaryHost(func(x, y float32) float32 { return x - y }))
}

// Scale returns the affine kernel: inp, out, with ScaleParams as params.
func Scale(workgroupSize int, nt tensor.NumType) runtime.KernelCode {
	return runtime.NewKernelCode("scale", ScaleSource, workgroupSize, nt).WithHost(scaleHost)
}

// ScaleParams encodes the uniform block of the Scale kernel.
func ScaleParams(scale, shift float32) []byte {
	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:4], math.Float32bits(scale))
	binary.LittleEndian.PutUint32(params[4:8], math.Float32bits(shift))
	return params
}
