package batch

import (
	"fmt"
	"slices"
)

const (
	Invalid DType = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Int16
	Int32
	Int64
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// -------- TYPE DEFINITIONS -------- //
type DType int

// Sample lists the element types an Array buffer may hold.
type Sample interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Array is a named entry of a Batch: a flat row-major buffer plus its spec.
// Data holds one of []uint8, []uint16, []uint32, []uint64, []int16, []int32,
// []int64, []float32 or []float64.
type Array struct {
	Data  any
	Shape []int
	Spec  ArraySpec
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return "invalid"
}

func (d DType) IsFloat() bool { return d == Float32 || d == Float64 }

// -------- CONSTRUCTORS -------- //
func NewArray[T Sample](data []T, shape []int, spec ArraySpec) (*Array, error) {
	if n := volume(shape); n != len(data) {
		return nil, fmt.Errorf("%w: %d samples for shape %v (want %d)", ErrShape, len(data), shape, n)
	}
	return &Array{Data: data, Shape: slices.Clone(shape), Spec: spec}, nil
}

// MustArray is NewArray for literals in tests and examples.
func MustArray[T Sample](data []T, shape []int, spec ArraySpec) *Array {
	a, err := NewArray(data, shape, spec)
	if err != nil {
		panic(err)
	}
	return a
}

// -------- ARRAY METHODS -------- //
func (a *Array) DType() DType {
	switch a.Data.(type) {
	case []uint8:
		return Uint8
	case []uint16:
		return Uint16
	case []uint32:
		return Uint32
	case []uint64:
		return Uint64
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []float32:
		return Float32
	case []float64:
		return Float64
	default:
		return Invalid
	}
}

func (a *Array) Dims() int { return len(a.Shape) }

func (a *Array) Len() int { return volume(a.Shape) }

// SectionLen is the number of samples in one slice along the leading axis.
func (a *Array) SectionLen() int {
	if len(a.Shape) == 0 {
		return 0
	}
	return volume(a.Shape[1:])
}

// Copy returns a deep copy of buffer, shape and spec.
func (a *Array) Copy() *Array {
	out := &Array{Shape: slices.Clone(a.Shape), Spec: a.Spec.Clone()}
	switch v := a.Data.(type) {
	case []uint8:
		out.Data = slices.Clone(v)
	case []uint16:
		out.Data = slices.Clone(v)
	case []uint32:
		out.Data = slices.Clone(v)
	case []uint64:
		out.Data = slices.Clone(v)
	case []int16:
		out.Data = slices.Clone(v)
	case []int32:
		out.Data = slices.Clone(v)
	case []int64:
		out.Data = slices.Clone(v)
	case []float32:
		out.Data = slices.Clone(v)
	case []float64:
		out.Data = slices.Clone(v)
	default:
		out.Data = a.Data
	}
	return out
}

// Values returns the buffer as []T when it holds exactly that type.
func Values[T Sample](a *Array) ([]T, bool) {
	v, ok := a.Data.([]T)
	return v, ok
}

// Float64s converts any supported buffer to a fresh []float64.
func (a *Array) Float64s() []float64 {
	switch v := a.Data.(type) {
	case []uint8:
		return widen(v)
	case []uint16:
		return widen(v)
	case []uint32:
		return widen(v)
	case []uint64:
		return widen(v)
	case []int16:
		return widen(v)
	case []int32:
		return widen(v)
	case []int64:
		return widen(v)
	case []float32:
		return widen(v)
	case []float64:
		return slices.Clone(v)
	default:
		return nil
	}
}

func widen[T Sample](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func volume(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Section returns slice z along the leading axis as an array that shares a's
// buffer. Its ArraySpec drops the leading axis.
func (a *Array) Section(z int) (*Array, error) {
	if len(a.Shape) < 2 {
		return nil, fmt.Errorf("%w: %dD array has no sections", ErrShape, len(a.Shape))
	}
	if z < 0 || z >= a.Shape[0] {
		return nil, fmt.Errorf("%w: section %d outside [0,%d)", ErrShape, z, a.Shape[0])
	}
	n := a.SectionLen()
	lo, hi := z*n, (z+1)*n
	sec := &Array{Shape: slices.Clone(a.Shape[1:]), Spec: ArraySpec{
		Roi:       Roi{Offset: tail(a.Spec.Roi.Offset), Shape: tail(a.Spec.Roi.Shape)},
		VoxelSize: tail(a.Spec.VoxelSize),
	}}
	switch v := a.Data.(type) {
	case []uint8:
		sec.Data = v[lo:hi]
	case []uint16:
		sec.Data = v[lo:hi]
	case []uint32:
		sec.Data = v[lo:hi]
	case []uint64:
		sec.Data = v[lo:hi]
	case []int16:
		sec.Data = v[lo:hi]
	case []int32:
		sec.Data = v[lo:hi]
	case []int64:
		sec.Data = v[lo:hi]
	case []float32:
		sec.Data = v[lo:hi]
	case []float64:
		sec.Data = v[lo:hi]
	default:
		return nil, fmt.Errorf("%w: unsupported buffer %T", ErrShape, a.Data)
	}
	return sec, nil
}

func tail(c Coordinate) Coordinate {
	if len(c) < 2 {
		return nil
	}
	return slices.Clone(c[1:])
}
