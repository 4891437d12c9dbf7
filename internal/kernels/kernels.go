// Package kernels provides built-in compute kernels. Each kernel carries a
// host implementation so it also runs on the software device.
package kernels

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/gpurt/internal/runtime"
	"github.com/born-ml/gpurt/internal/tensor"
)

// DefaultWorkgroupSize is the 1-D workgroup size the built-in kernels use.
const DefaultWorkgroupSize = 256

// Info describes a built-in kernel.
type Info struct {
	Name        string
	Bindings    int  // storage bindings
	Params      bool // takes a uniform block
	Description string
}

var builtins = map[string]struct {
	info Info
	code func(workgroupSize int, nt tensor.NumType) runtime.KernelCode
}{
	"gelu": {
		Info{"gelu", 2, false, "GELU, tanh approximation (f32 only)"},
		func(wg int, _ tensor.NumType) runtime.KernelCode { return GELU(wg) },
	},
	"add":   {Info{"add", 3, false, "out = a + b"}, Add},
	"sub":   {Info{"sub", 3, false, "out = a - b"}, Sub},
	"scale": {Info{"scale", 2, true, "out = inp * scale + shift"}, Scale},
}

// List returns the built-in kernels sorted by name.
func List() []Info {
	infos := make([]Info, 0, len(builtins))
	for _, b := range builtins {
		infos = append(infos, b.info)
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return infos
}

// Lookup returns the named built-in kernel.
func Lookup(name string, workgroupSize int, nt tensor.NumType) (runtime.KernelCode, error) {
	b, ok := builtins[name]
	if !ok {
		return runtime.KernelCode{}, fmt.Errorf("kernels: no built-in kernel %q", name)
	}
	return b.code(workgroupSize, nt), nil
}
