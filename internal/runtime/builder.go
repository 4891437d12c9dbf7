package runtime

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/born-ml/gpurt/internal/tensor"
	"github.com/born-ml/gpurt/internal/wgsl"
)

type namedBinding struct {
	name string
	Binding
}

// KernelBuilder binds tensors by the variable names the kernel declares.
// Unlike CreateKernel, every binding is checked against the reflected
// declarations. Errors are reported by Build.
type KernelBuilder struct {
	ctx    *Context
	code   KernelCode
	binds  []namedBinding
	params []byte
	grid   tensor.Shape
}

// NewKernelBuilder starts a kernel from code.
func (c *Context) NewKernelBuilder(code KernelCode) *KernelBuilder {
	return &KernelBuilder{ctx: c, code: code}
}

// Bind binds t to the storage variable name.
func (b *KernelBuilder) Bind(name string, t *Tensor) *KernelBuilder {
	return b.BindView(name, t, 0)
}

// BindView binds t to name, starting offset bytes into the tensor.
func (b *KernelBuilder) BindView(name string, t *Tensor, offset uint64) *KernelBuilder {
	b.binds = append(b.binds, namedBinding{name: name, Binding: Binding{Tensor: t, Offset: offset}})
	return b
}

// Params sets the contents of the uniform binding.
func (b *KernelBuilder) Params(params []byte) *KernelBuilder {
	b.params = params
	return b
}

// Grid sets the workgroup counts.
func (b *KernelBuilder) Grid(grid tensor.Shape) *KernelBuilder {
	b.grid = grid
	return b
}

// Build compiles the kernel. Every storage slot must be bound exactly once.
func (b *KernelBuilder) Build() (*Kernel, error) {
	c, code := b.ctx, b.code
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	src, m, err := code.reflect()
	if err != nil {
		return nil, err
	}

	bySlot := make(map[int]namedBinding, len(b.binds))
	for _, nb := range b.binds {
		decl, ok := m.Lookup(nb.name)
		if !ok {
			return nil, fmt.Errorf("gpurt: kernel %s: %w: %q%s", code.label(), ErrUnknownBinding, nb.name, suggest(nb.name, m))
		}
		if decl.Space != wgsl.Storage {
			return nil, fmt.Errorf("gpurt: kernel %s: %w: %q is a %s binding, set it with Params",
				code.label(), ErrUnknownBinding, nb.name, decl.Space)
		}
		if prev, dup := bySlot[decl.Slot]; dup {
			return nil, fmt.Errorf("gpurt: kernel %s: %w: %q and %q both bind slot %d",
				code.label(), ErrBindingCount, prev.name, nb.name, decl.Slot)
		}
		if err := c.checkView(nb.Tensor, nb.Offset); err != nil {
			return nil, fmt.Errorf("gpurt: kernel %s: binding %q: %w", code.label(), nb.name, err)
		}
		bySlot[decl.Slot] = nb
	}

	slots := m.StorageSlots()
	var missing []string
	bound := make([]slotBinding, 0, len(slots))
	for _, slot := range slots {
		nb, ok := bySlot[slot]
		if !ok {
			missing = append(missing, fmt.Sprintf("%d", slot))
			continue
		}
		bound = append(bound, slotBinding{slot: slot, Binding: nb.Binding})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("gpurt: kernel %s: %w: storage slots %s not bound",
			code.label(), ErrBindingCount, strings.Join(missing, ", "))
	}

	return c.newKernel(code, src, m, bound, b.grid, b.params)
}

// suggest returns a "did you mean" hint for an unknown binding name.
func suggest(name string, m *wgsl.Module) string {
	names := m.Names()
	if len(names) == 0 {
		return ""
	}
	best := slices.MinFunc(names, func(a, b string) int {
		return levenshtein.ComputeDistance(name, a) - levenshtein.ComputeDistance(name, b)
	})
	if levenshtein.ComputeDistance(name, best) > max(2, len(name)/2) {
		return fmt.Sprintf(" (declared: %s)", strings.Join(names, ", "))
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
