package batch

import (
	"fmt"
	"slices"
)

// Coordinate is a position or extent with one entry per axis, leading axis first.
type Coordinate []int

func (c Coordinate) Dims() int { return len(c) }

// Div divides element-wise. Every entry must divide exactly.
func (c Coordinate) Div(d Coordinate) (Coordinate, error) {
	if len(c) != len(d) {
		return nil, fmt.Errorf("%w: cannot divide %v by %v (dims %d vs %d)", ErrIncompatible, c, d, len(c), len(d))
	}
	out := make(Coordinate, len(c))
	for i := range c {
		if d[i] == 0 {
			return nil, fmt.Errorf("%w: zero divisor on axis %d of %v", ErrIncompatible, i, d)
		}
		if c[i]%d[i] != 0 {
			return nil, fmt.Errorf("%w: %d on axis %d is not a multiple of %d", ErrIncompatible, c[i], i, d[i])
		}
		out[i] = c[i] / d[i]
	}
	return out, nil
}

// Mul multiplies element-wise.
func (c Coordinate) Mul(d Coordinate) (Coordinate, error) {
	if len(c) != len(d) {
		return nil, fmt.Errorf("%w: cannot multiply %v by %v", ErrIncompatible, c, d)
	}
	out := make(Coordinate, len(c))
	for i := range c {
		out[i] = c[i] * d[i]
	}
	return out, nil
}

func (c Coordinate) Equal(d Coordinate) bool { return slices.Equal(c, d) }

func (c Coordinate) Clone() Coordinate { return slices.Clone(c) }

// Roi is a region of interest in physical units.
type Roi struct {
	Offset Coordinate
	Shape  Coordinate
}

func NewRoi(offset, shape Coordinate) Roi {
	return Roi{Offset: offset, Shape: shape}
}

func (r Roi) Dims() int { return len(r.Shape) }

func (r Roi) End() Coordinate {
	end := make(Coordinate, len(r.Shape))
	for i := range r.Shape {
		end[i] = r.Shape[i]
		if i < len(r.Offset) {
			end[i] += r.Offset[i]
		}
	}
	return end
}

// Div converts a physical ROI into voxel units.
func (r Roi) Div(voxelSize Coordinate) (Roi, error) {
	shape, err := r.Shape.Div(voxelSize)
	if err != nil {
		return Roi{}, err
	}
	offset := Coordinate(nil)
	if r.Offset != nil {
		if offset, err = r.Offset.Div(voxelSize); err != nil {
			return Roi{}, err
		}
	}
	return Roi{Offset: offset, Shape: shape}, nil
}

func (r Roi) Equal(o Roi) bool { return r.Offset.Equal(o.Offset) && r.Shape.Equal(o.Shape) }

func (r Roi) Clone() Roi { return Roi{Offset: r.Offset.Clone(), Shape: r.Shape.Clone()} }

func (r Roi) String() string { return fmt.Sprintf("[%v:%v]", r.Offset, r.End()) }

// ArraySpec describes where an array lives and how large one sample is.
type ArraySpec struct {
	Roi       Roi
	VoxelSize Coordinate
}

// SpecFor builds the ArraySpec of a buffer with the given shape whose samples are
// voxelSize apart, starting at offset. A nil voxelSize means 1 on every axis.
func SpecFor(shape []int, offset, voxelSize Coordinate) ArraySpec {
	if voxelSize == nil {
		voxelSize = make(Coordinate, len(shape))
		for i := range voxelSize {
			voxelSize[i] = 1
		}
	}
	if offset == nil {
		offset = make(Coordinate, len(shape))
	}
	extent := make(Coordinate, len(shape))
	for i := range shape {
		extent[i] = shape[i] * voxelSize[i]
	}
	return ArraySpec{Roi: Roi{Offset: offset, Shape: extent}, VoxelSize: voxelSize}
}

func (s ArraySpec) Equal(o ArraySpec) bool {
	return s.Roi.Equal(o.Roi) && s.VoxelSize.Equal(o.VoxelSize)
}

func (s ArraySpec) Clone() ArraySpec {
	return ArraySpec{Roi: s.Roi.Clone(), VoxelSize: s.VoxelSize.Clone()}
}
