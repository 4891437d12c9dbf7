// Package tensor provides shapes and element types shared by the runtime and
// the devices.
package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// Element is a constraint for host slices that can be copied to and from
// device tensors.
type Element interface {
	float32 | int32 | uint32 | float16.Float16
}

// NumType represents the element type of a device tensor.
type NumType int

// Supported element types.
const (
	F32 NumType = iota
	F16
	I32
	U32
)

// Size returns the byte size of the type.
func (nt NumType) Size() int {
	switch nt {
	case F32, I32, U32:
		return 4
	case F16:
		return 2
	default:
		panic("unknown numeric type")
	}
}

// String returns the WGSL scalar name of the type. This is what the
// {{precision}} placeholder expands to.
func (nt NumType) String() string {
	switch nt {
	case F32:
		return "f32"
	case F16:
		return "f16"
	case I32:
		return "i32"
	case U32:
		return "u32"
	default:
		return "unknown"
	}
}

// ParseNumType is the inverse of NumType.String.
func ParseNumType(s string) (NumType, error) {
	switch s {
	case "f32":
		return F32, nil
	case "f16":
		return F16, nil
	case "i32":
		return I32, nil
	case "u32":
		return U32, nil
	default:
		return 0, fmt.Errorf("unknown numeric type %q", s)
	}
}

// IsFloat reports whether the type is a floating point type.
func (nt NumType) IsFloat() bool {
	return nt == F32 || nt == F16
}

// TypeOf returns the NumType matching the host element type T.
func TypeOf[T Element]() NumType {
	var zero T
	switch any(zero).(type) {
	case float16.Float16:
		return F16
	case int32:
		return I32
	case uint32:
		return U32
	default:
		return F32
	}
}
