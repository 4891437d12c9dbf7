package runtime

import (
	"fmt"
	"sync"

	"github.com/born-ml/gpurt/internal/backend"
	"github.com/born-ml/gpurt/internal/tensor"
	"github.com/born-ml/gpurt/internal/wgsl"
)

// DefaultEntryPoint is the compute function a KernelCode names by default.
const DefaultEntryPoint = "main"

// KernelCode is a WGSL template with its launch parameters.
//
// Source may contain {{precision}} and {{workgroupSize}}. Host is the host
// implementation the software device runs in place of the shader; the WebGPU
// device ignores it.
type KernelCode struct {
	Name          string
	Source        string
	WorkgroupSize int
	Precision     tensor.NumType
	EntryPoint    string
	Host          backend.HostFunc
}

// NewKernelCode returns a KernelCode with the default entry point.
func NewKernelCode(name, source string, workgroupSize int, precision tensor.NumType) KernelCode {
	return KernelCode{
		Name:          name,
		Source:        source,
		WorkgroupSize: workgroupSize,
		Precision:     precision,
		EntryPoint:    DefaultEntryPoint,
	}
}

// WithHost returns a copy of c with the host implementation set.
func (c KernelCode) WithHost(host backend.HostFunc) KernelCode {
	c.Host = host
	return c
}

// WithPrecision returns a copy of c with another precision.
func (c KernelCode) WithPrecision(nt tensor.NumType) KernelCode {
	c.Precision = nt
	return c
}

// Materialize returns the WGSL with every placeholder substituted.
func (c KernelCode) Materialize() (string, error) {
	src, err := wgsl.Expand(c.Source, c.Precision, c.WorkgroupSize)
	if err != nil {
		return "", fmt.Errorf("gpurt: kernel %s: %w", c.label(), err)
	}
	return src, nil
}

func (c KernelCode) entryPoint() string {
	if c.EntryPoint == "" {
		return DefaultEntryPoint
	}
	return c.EntryPoint
}

func (c KernelCode) label() string {
	if c.Name == "" {
		return "kernel"
	}
	return c.Name
}

// reflect materializes and reflects the code and checks that the declared
// workgroup size is the one the template was expanded with.
func (c KernelCode) reflect() (string, *wgsl.Module, error) {
	src, err := c.Materialize()
	if err != nil {
		return "", nil, err
	}
	m, err := wgsl.Reflect(src, c.entryPoint())
	if err != nil {
		return "", nil, fmt.Errorf("gpurt: kernel %s: %w", c.label(), err)
	}
	if m.WorkgroupSize != [3]int{c.WorkgroupSize, 1, 1} {
		return "", nil, fmt.Errorf("gpurt: kernel %s: %w: @workgroup_size %v does not match workgroup size %d",
			c.label(), ErrReflect, m.WorkgroupSize, c.WorkgroupSize)
	}
	return src, m, nil
}

// KernelState is the lifecycle state of a Kernel.
type KernelState int

// Kernels are dispatched at most once.
const (
	KernelCreated KernelState = iota
	KernelSubmitted
	KernelCompleted
)

func (s KernelState) String() string {
	switch s {
	case KernelCreated:
		return "created"
	case KernelSubmitted:
		return "submitted"
	case KernelCompleted:
		return "completed"
	default:
		return fmt.Sprintf("KernelState(%d)", int(s))
	}
}

// Binding is a tensor seen by a kernel starting at a byte offset.
type Binding struct {
	Tensor *Tensor
	Offset uint64
}

type slotBinding struct {
	slot int
	Binding
}

// Kernel is a compiled kernel bound to tensors, params and a grid.
// It borrows its tensors and can be dispatched once.
type Kernel struct {
	id       KernelID
	ctx      *Context
	code     KernelCode
	module   *wgsl.Module
	program  backend.ProgramHandle
	bindings []slotBinding // ascending slot order
	params   []byte
	grid     [3]uint32

	mu       sync.Mutex
	state    KernelState
	released bool
}

// ID returns the kernel's identifier.
func (k *Kernel) ID() KernelID { return k.id }

// Code returns the kernel's code.
func (k *Kernel) Code() KernelCode { return k.code }

// Grid returns the workgroup counts, padded to three dimensions.
func (k *Kernel) Grid() tensor.Shape {
	return tensor.Shape{int(k.grid[0]), int(k.grid[1]), int(k.grid[2])}
}

// State returns the lifecycle state.
func (k *Kernel) State() KernelState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Bindings returns the bound tensors in slot order.
func (k *Kernel) Bindings() []Binding {
	out := make([]Binding, len(k.bindings))
	for i, b := range k.bindings {
		out[i] = b.Binding
	}
	return out
}

// Release frees a kernel that will not be dispatched. Kernels free
// themselves on completion. It fails with ErrKernelBusy while in flight.
func (k *Kernel) Release() error {
	// The state check and the released mark share one hold of mu, so
	// Dispatch either sees released or has already moved the state on.
	k.mu.Lock()
	if k.state == KernelSubmitted {
		k.mu.Unlock()
		return fmt.Errorf("%w: kernel %d", ErrKernelBusy, k.id)
	}
	first := k.markReleasedLocked()
	k.mu.Unlock()

	k.ctx.mu.Lock()
	delete(k.ctx.kernels, k.id)
	k.ctx.mu.Unlock()

	if first {
		k.ctx.device.ReleaseProgram(k.program)
	}
	return nil
}

// free releases the device program once.
func (k *Kernel) free() {
	k.mu.Lock()
	first := k.markReleasedLocked()
	k.mu.Unlock()

	if first {
		k.ctx.device.ReleaseProgram(k.program)
	}
}

// markReleasedLocked reports whether this call did the marking.
func (k *Kernel) markReleasedLocked() bool {
	if k.released {
		return false
	}
	k.released = true
	return true
}

// validateGrid pads grid to three positive workgroup counts.
func validateGrid(grid tensor.Shape) ([3]uint32, error) {
	out := [3]uint32{1, 1, 1}
	if len(grid) == 0 || len(grid) > 3 {
		return out, fmt.Errorf("%w: rank %d, want 1 to 3", ErrInvalidGrid, len(grid))
	}
	for i, n := range grid {
		if n < 1 || uint64(n) > 1<<32-1 {
			return out, fmt.Errorf("%w: %v", ErrInvalidGrid, grid)
		}
		out[i] = uint32(n) //nolint:gosec // G115: range checked
	}
	return out, nil
}

// checkParams requires params exactly when the module declares a uniform.
func checkParams(code KernelCode, m *wgsl.Module, params []byte) error {
	_, hasUniform := m.UniformSlot()
	switch {
	case hasUniform && len(params) == 0:
		return fmt.Errorf("gpurt: kernel %s: %w: uniform binding declared but no params given", code.label(), ErrParams)
	case !hasUniform && len(params) > 0:
		return fmt.Errorf("gpurt: kernel %s: %w: %d bytes of params but no uniform binding", code.label(), ErrParams, len(params))
	}
	return nil
}

// checkView validates a binding of t at offset.
func (c *Context) checkView(t *Tensor, offset uint64) error {
	if err := c.own(t); err != nil {
		return err
	}
	if offset%uint64(t.numType.Size()) != 0 || offset >= uint64(t.ByteSize()) { //nolint:gosec // G115: sizes are positive
		return fmt.Errorf("%w: %d for %v", ErrInvalidOffset, offset, t)
	}
	return nil
}

// CreateKernel compiles code and binds tensors positionally: the i-th
// tensor is bound to the i-th storage slot in ascending slot order. The
// number of tensors must equal the number of distinct storage slots. Params
// fill the uniform binding, if the kernel declares one.
func (c *Context) CreateKernel(code KernelCode, bindings []*Tensor, grid tensor.Shape, params []byte) (*Kernel, error) {
	views := make([]Binding, len(bindings))
	for i, t := range bindings {
		views[i] = Binding{Tensor: t}
	}
	return c.CreateKernelViews(code, views, grid, params)
}

// CreateKernelViews is CreateKernel with per-binding byte offsets.
func (c *Context) CreateKernelViews(code KernelCode, views []Binding, grid tensor.Shape, params []byte) (*Kernel, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	src, m, err := code.reflect()
	if err != nil {
		return nil, err
	}

	slots := m.StorageSlots()
	if len(views) != len(slots) {
		return nil, fmt.Errorf("gpurt: kernel %s: %w: %d tensors for %d storage bindings",
			code.label(), ErrBindingCount, len(views), len(slots))
	}
	bound := make([]slotBinding, len(slots))
	for i, v := range views {
		if err := c.checkView(v.Tensor, v.Offset); err != nil {
			return nil, fmt.Errorf("gpurt: kernel %s: binding %d: %w", code.label(), i, err)
		}
		bound[i] = slotBinding{slot: slots[i], Binding: v}
	}

	return c.newKernel(code, src, m, bound, grid, params)
}

func (c *Context) newKernel(code KernelCode, src string, m *wgsl.Module, bound []slotBinding, grid tensor.Shape, params []byte) (*Kernel, error) {
	g, err := validateGrid(grid)
	if err != nil {
		return nil, fmt.Errorf("gpurt: kernel %s: %w", code.label(), err)
	}
	if err := checkParams(code, m, params); err != nil {
		return nil, err
	}

	prog, err := c.device.CompileProgram(backend.ProgramSource{
		Label:      code.label(),
		Code:       src,
		EntryPoint: m.EntryPoint,
		Module:     m,
		Precision:  code.Precision,
		Host:       code.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("gpurt: kernel %s: %w: %w", code.label(), ErrCompile, err)
	}

	k := &Kernel{
		id:       KernelID(c.newID()),
		ctx:      c,
		code:     code,
		module:   m,
		program:  prog,
		bindings: bound,
		params:   append([]byte(nil), params...),
		grid:     g,
	}

	c.mu.Lock()
	if err := c.checkLiveLocked(); err != nil {
		c.mu.Unlock()
		c.device.ReleaseProgram(prog)
		return nil, err
	}
	c.kernels[k.id] = k
	c.mu.Unlock()

	c.log.Debug("kernel created", "id", k.id, "name", code.label(), "grid", g, "bindings", len(bound))
	return k, nil
}
