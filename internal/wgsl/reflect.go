package wgsl

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrReflect is returned when the shader does not declare what the runtime
// needs to bind and dispatch it.
var ErrReflect = errors.New("shader reflection failed")

// AddressSpace of a resource declaration.
type AddressSpace string

// Address spaces the runtime can bind.
const (
	Storage AddressSpace = "storage"
	Uniform AddressSpace = "uniform"
)

// Binding describes one `@group(0) @binding(n) var<...> name: T;` declaration.
type Binding struct {
	Slot    int
	Name    string
	Space   AddressSpace
	Access  string // "read", "read_write", or "" for uniforms
	Type    string
	Aliases []string // later declarations that reuse the same slot
}

// Module is the reflection of an expanded kernel source.
type Module struct {
	EntryPoint    string
	WorkgroupSize [3]int

	// decls is keyed by variable name in declaration order, aliases included.
	decls *orderedmap.OrderedMap[string, *Binding]
	slots map[int]*Binding
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	declExpr     = regexp.MustCompile(
		`((?:@(?:group|binding)\s*\(\s*\d+\s*\)\s*){2})var\s*<\s*(storage|uniform)\s*(?:,\s*(read_write|read))?\s*>\s*([A-Za-z_]\w*)\s*:\s*([^;]+);`)
	attrExpr  = regexp.MustCompile(`@(group|binding)\s*\(\s*(\d+)\s*\)`)
	entryExpr = regexp.MustCompile(`((?:@\w+(?:\s*\([^)]*\))?\s*)+)fn\s+([A-Za-z_]\w*)\s*\(`)
	sizeExpr  = regexp.MustCompile(`@workgroup_size\s*\(([^)]*)\)`)
)

// Reflect parses the binding declarations and the compute entry point of src.
// Only bind group 0 is supported.
func Reflect(src, entryPoint string) (*Module, error) {
	if entryPoint == "" {
		entryPoint = "main"
	}
	code := blockComment.ReplaceAllString(src, "")
	code = lineComment.ReplaceAllString(code, "")

	m := &Module{
		EntryPoint: entryPoint,
		decls:      orderedmap.New[string, *Binding](),
		slots:      make(map[int]*Binding),
	}
	if err := m.reflectBindings(code); err != nil {
		return nil, err
	}
	if err := m.reflectEntry(code); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) reflectBindings(code string) error {
	uniforms := 0
	for _, match := range declExpr.FindAllStringSubmatch(code, -1) {
		group, slot := -1, -1
		for _, attr := range attrExpr.FindAllStringSubmatch(match[1], -1) {
			n, _ := strconv.Atoi(attr[2])
			if attr[1] == "group" {
				group = n
			} else {
				slot = n
			}
		}
		if group < 0 || slot < 0 {
			return fmt.Errorf("%w: declaration %q needs both @group and @binding", ErrReflect, match[4])
		}
		if group != 0 {
			return fmt.Errorf("%w: %s uses bind group %d, only group 0 is supported", ErrReflect, match[4], group)
		}

		name := match[4]
		if _, dup := m.decls.Get(name); dup {
			return fmt.Errorf("%w: variable %s declared twice", ErrReflect, name)
		}

		if owner, ok := m.slots[slot]; ok {
			if owner.Space != AddressSpace(match[2]) {
				return fmt.Errorf("%w: slot %d declared as both %s and %s", ErrReflect, slot, owner.Space, match[2])
			}
			owner.Aliases = append(owner.Aliases, name)
			m.decls.Set(name, owner)
			continue
		}

		b := &Binding{
			Slot:   slot,
			Name:   name,
			Space:  AddressSpace(match[2]),
			Access: match[3],
			Type:   strings.TrimSpace(match[5]),
		}
		if b.Space == Storage && b.Access == "" {
			b.Access = "read"
		}
		if b.Space == Uniform {
			uniforms++
			if uniforms > 1 {
				return fmt.Errorf("%w: at most one uniform binding is supported", ErrReflect)
			}
		}
		m.slots[slot] = b
		m.decls.Set(name, b)
	}
	return nil
}

func (m *Module) reflectEntry(code string) error {
	for _, match := range entryExpr.FindAllStringSubmatch(code, -1) {
		if match[2] != m.EntryPoint {
			continue
		}
		attrs := match[1]
		if !strings.Contains(attrs, "@compute") {
			return fmt.Errorf("%w: entry point %s is not a @compute function", ErrReflect, m.EntryPoint)
		}
		size := sizeExpr.FindStringSubmatch(attrs)
		if size == nil {
			return fmt.Errorf("%w: entry point %s has no @workgroup_size", ErrReflect, m.EntryPoint)
		}
		m.WorkgroupSize = [3]int{1, 1, 1}
		args := strings.Split(size[1], ",")
		if len(args) > 3 {
			return fmt.Errorf("%w: @workgroup_size takes at most 3 arguments", ErrReflect)
		}
		for i, arg := range args {
			arg = strings.TrimSuffix(strings.TrimSpace(arg), "u")
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return fmt.Errorf("%w: @workgroup_size argument %q is not a positive integer literal", ErrReflect, arg)
			}
			m.WorkgroupSize[i] = n
		}
		return nil
	}
	return fmt.Errorf("%w: entry point %s not found", ErrReflect, m.EntryPoint)
}

// StorageSlots returns the distinct storage binding slots in ascending order.
// Positional tensor bindings map onto these.
func (m *Module) StorageSlots() []int {
	var slots []int
	for slot, b := range m.slots {
		if b.Space == Storage {
			slots = append(slots, slot)
		}
	}
	slices.Sort(slots)
	return slots
}

// UniformSlot returns the uniform binding slot, if one is declared.
func (m *Module) UniformSlot() (int, bool) {
	for slot, b := range m.slots {
		if b.Space == Uniform {
			return slot, true
		}
	}
	return 0, false
}

// Lookup returns the binding declared under name (or one of its aliases).
func (m *Module) Lookup(name string) (*Binding, bool) {
	return m.decls.Get(name)
}

// Names returns every declared variable name in declaration order.
func (m *Module) Names() []string {
	names := make([]string, 0, m.decls.Len())
	for pair := m.decls.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// NumSlots returns the number of distinct slots declared.
func (m *Module) NumSlots() int {
	return len(m.slots)
}
