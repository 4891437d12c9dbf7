package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/x448/float16"
)

// Device buffers are little-endian, matching every platform WebGPU runs on.

// AsBytes reinterprets a host slice as its raw bytes without copying.
func AsBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // unsafe.Slice for zero-copy view, length derived from len(s)
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// CopyFromBytes fills dst from raw little-endian bytes and returns the number
// of elements written.
func CopyFromBytes[T Element](dst []T, src []byte) int {
	n := copy(AsBytes(dst), src)
	var zero T
	return n / int(unsafe.Sizeof(zero))
}

// LoadFloat32 reads element i of buf, interpreted as nt, converted to float32.
func LoadFloat32(nt NumType, buf []byte, i int) float32 {
	switch nt {
	case F32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	case F16:
		return float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32()
	case I32:
		return float32(int32(binary.LittleEndian.Uint32(buf[i*4:]))) //nolint:gosec // G115: reinterpreting stored bits
	case U32:
		return float32(binary.LittleEndian.Uint32(buf[i*4:]))
	default:
		panic(fmt.Sprintf("tensor: LoadFloat32: unsupported type %v", nt))
	}
}

// StoreFloat32 writes v into element i of buf, converted to nt.
// Integer types truncate toward zero.
func StoreFloat32(nt NumType, buf []byte, i int, v float32) {
	switch nt {
	case F32:
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	case F16:
		binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
	case I32:
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v))) //nolint:gosec // G115: two's complement storage
	case U32:
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	default:
		panic(fmt.Sprintf("tensor: StoreFloat32: unsupported type %v", nt))
	}
}

// EncodeFloat32 converts host float32 values into a buffer of type nt.
func EncodeFloat32(nt NumType, src []float32) []byte {
	if nt == F32 {
		out := make([]byte, len(src)*4)
		copy(out, AsBytes(src))
		return out
	}
	out := make([]byte, len(src)*nt.Size())
	for i, v := range src {
		StoreFloat32(nt, out, i, v)
	}
	return out
}

// DecodeFloat32 converts len(dst) elements of type nt from src into dst.
func DecodeFloat32(nt NumType, src []byte, dst []float32) {
	if nt == F32 {
		CopyFromBytes(dst, src)
		return
	}
	for i := range dst {
		dst[i] = LoadFloat32(nt, src, i)
	}
}
