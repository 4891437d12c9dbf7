package kernels

import (
	"math"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/runtime"
	"github.com/born-ml/gpurt/internal/tensor"
)

// GELUSource is the tanh approximation of GELU. Inputs above 10 pass
// through. Slot 1 is declared twice; "dummy" is an alias of "out".
const GELUSource = `
const GELU_SCALING_FACTOR: f32 = 0.7978845608028654; // sqrt(2.0 / PI)
@group(0) @binding(0) var<storage, read_write> inp: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> out: array<{{precision}}>;
@group(0) @binding(1) var<storage, read_write> dummy: array<{{precision}}>;
@compute @workgroup_size({{workgroupSize}})
fn main(
    @builtin(global_invocation_id) GlobalInvocationID: vec3<u32>) {
    let i: u32 = GlobalInvocationID.x;
    if (i < arrayLength(&inp)) {
        let x: f32 = inp[i];
        out[i] = select(0.5 * x * (1.0 + tanh(GELU_SCALING_FACTOR
                 * (x + .044715 * x * x * x))), x, x > 10.0);
    }
}
`

const geluScalingFactor = 0.7978845608028654 // sqrt(2 / pi)

// GELUValue computes GELU(x) the way the kernel does.
func GELUValue(x float32) float32 {
	if x > 10 {
		return x
	}
	v := float64(x)
	return float32(0.5 * v * (1 + math.Tanh(geluScalingFactor*(v+0.044715*v*v*v))))
}

func geluHost(id [3]uint32, b *backend.Bindings) error {
	i := int(id[0])
	if i < b.Len(0) {
		b.Store(1, i, GELUValue(b.Load(0, i)))
	}
	return nil
}

// GELU returns the f32 GELU kernel. Bind the input then the output tensor.
func GELU(workgroupSize int) runtime.KernelCode {
	return runtime.NewKernelCode("gelu", GELUSource, workgroupSize, tensor.F32).WithHost(geluHost)
}
