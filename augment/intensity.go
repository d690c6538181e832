// Package augment holds the batch filters that randomize array values for training.
package augment

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/b0tShaman/voxaug/batch"
)

// IntensityConfig holds the blueprint of an IntensityAugment. Values are
// changed as
//
//	a = mean(a) + (a - mean(a))*scale + shift
//
// with scale and shift drawn uniformly from the closed ranges below.
type IntensityConfig struct {
	Arrays   []batch.ArrayKey
	ScaleMin float64
	ScaleMax float64
	ShiftMin float64
	ShiftMax float64
	// ZSectionWise draws a new scale and shift for every slice along the
	// leading (z) axis. Requires a single 3D array.
	ZSectionWise bool
}

// Option sets one field of an IntensityAugment.
type Option func(*IntensityAugment)

// IntensityAugment randomly scales and shifts the values of intensity arrays
// in place. All arrays of one call share the same draw, so co-registered
// channels stay consistent.
//
// It keeps no state besides its configuration. Concurrent use is safe when
// the random source is (see LockedSource).
type IntensityAugment struct {
	cfg IntensityConfig
	src rand.Source
}

type target struct {
	key      batch.ArrayKey
	array    *batch.Array
	sections int
}

// ------- OPTIONS ------- //
// Arrays selects the arrays to modify. A single key is just Arrays(RAW).
func Arrays(keys ...batch.ArrayKey) Option {
	return func(ia *IntensityAugment) {
		ia.cfg.Arrays = keys
	}
}

// Scale sets the closed range the multiplicative factor is drawn from.
func Scale(min, max float64) Option {
	return func(ia *IntensityAugment) {
		ia.cfg.ScaleMin, ia.cfg.ScaleMax = min, max
	}
}

// Shift sets the closed range the additive offset is drawn from.
func Shift(min, max float64) Option {
	return func(ia *IntensityAugment) {
		ia.cfg.ShiftMin, ia.cfg.ShiftMax = min, max
	}
}

// ZSectionWise toggles one draw per z-section.
func ZSectionWise(on bool) Option {
	return func(ia *IntensityAugment) {
		ia.cfg.ZSectionWise = on
	}
}

// WithSource sets the random source. Without it the process-wide generator is used.
func WithSource(src rand.Source) Option {
	return func(ia *IntensityAugment) {
		ia.src = src
	}
}

// -------- CONSTRUCTORS ------- //
func NewIntensityAugment(cfg IntensityConfig, opts ...Option) *IntensityAugment {
	ia := &IntensityAugment{cfg: cfg}
	for _, opt := range opts {
		opt(ia)
	}
	ia.cfg.Arrays = uniqueKeys(ia.cfg.Arrays)
	return ia
}

// Intensity builds an IntensityAugment from options alone. Ranges not given
// default to the identity (scale 1, shift 0).
func Intensity(opts ...Option) *IntensityAugment {
	return NewIntensityAugment(IntensityConfig{ScaleMin: 1, ScaleMax: 1}, opts...)
}

func (ia *IntensityAugment) Config() IntensityConfig {
	cfg := ia.cfg
	cfg.Arrays = slices.Clone(cfg.Arrays)
	return cfg
}

// Process augments the configured arrays of b in place. Keys missing from b
// are skipped. Every present array is validated before any value changes.
func (ia *IntensityAugment) Process(b *batch.Batch) error {
	if ia.cfg.ZSectionWise && len(ia.cfg.Arrays) > 1 {
		return fmt.Errorf("%w: z-section-wise intensity augment of %d arrays %v, arrays may differ in resolution",
			ErrConfigurationUnsupported, len(ia.cfg.Arrays), ia.cfg.Arrays)
	}

	// 1. Validate
	targets := make([]target, 0, len(ia.cfg.Arrays))
	for _, key := range ia.cfg.Arrays {
		a, ok := b.Get(key)
		if !ok {
			continue
		}
		t, err := ia.validate(key, a)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil
	}

	// 2. Transform
	if ia.cfg.ZSectionWise {
		t := targets[0]
		n := t.array.SectionLen()
		for z := 0; z < t.sections; z++ {
			scale, shift := ia.draw()
			augmentScope(t.array.Data, z*n, (z+1)*n, scale, shift)
		}
	} else {
		scale, shift := ia.draw()
		for _, t := range targets {
			augmentScope(t.array.Data, 0, t.array.Len(), scale, shift)
		}
	}

	// 3. Clip, the transform may leave [0,1]
	for _, t := range targets {
		switch v := t.array.Data.(type) {
		case []float64:
			clip(v)
		case []float32:
			clip(v)
		}
	}
	return nil
}

func (ia *IntensityAugment) validate(key batch.ArrayKey, a *batch.Array) (target, error) {
	t := target{key: key, array: a}

	if ia.cfg.ZSectionWise && (a.Spec.Roi.Dims() != 3 || a.Dims() != 3) {
		return t, fmt.Errorf("%w: z-section-wise intensity augment expects 3D data, array %s has roi %v and shape %v",
			ErrDimensionality, key, a.Spec.Roi, a.Shape)
	}

	var (
		idx int
		val float64
		bad bool
	)
	switch v := a.Data.(type) {
	case []float64:
		idx, val, bad = outOfUnit(v)
	case []float32:
		idx, val, bad = outOfUnit(v)
	default:
		return t, fmt.Errorf("%w: intensity augment requires float types for array %s (not %s), consider using Normalize before",
			ErrDType, key, a.DType())
	}
	if bad {
		return t, fmt.Errorf("%w: intensity augment expects values in [0,1], array %s has %v at %d, consider using Normalize before",
			ErrRange, key, val, idx)
	}

	if ia.cfg.ZSectionWise {
		voxels, err := a.Spec.Roi.Shape.Div(a.Spec.VoxelSize)
		if err != nil {
			return t, fmt.Errorf("%w: array %s: %w", ErrSpecMismatch, key, err)
		}
		if voxels[0] != a.Shape[0] {
			return t, fmt.Errorf("%w: array %s spans %d z-sections (roi %v, voxel size %v) but holds %d",
				ErrSpecMismatch, key, voxels[0], a.Spec.Roi, a.Spec.VoxelSize, a.Shape[0])
		}
		t.sections = voxels[0]
	}
	return t, nil
}

// draw returns one (scale, shift) pair, scale first.
func (ia *IntensityAugment) draw() (scale, shift float64) {
	scale = distuv.Uniform{Min: ia.cfg.ScaleMin, Max: ia.cfg.ScaleMax, Src: ia.src}.Rand()
	shift = distuv.Uniform{Min: ia.cfg.ShiftMin, Max: ia.cfg.ShiftMax, Src: ia.src}.Rand()
	return scale, shift
}

// ------ UTILITY FUNCTIONS ------
func augmentScope(data any, lo, hi int, scale, shift float64) {
	switch v := data.(type) {
	case []float64:
		augment64(v[lo:hi], scale, shift)
	case []float32:
		augment32(v[lo:hi], scale, shift)
	}
}

func augment64(a []float64, scale, shift float64) {
	if len(a) == 0 || (scale == 1 && shift == 0) {
		return
	}
	mean := stat.Mean(a, nil)
	floats.AddConst(-mean, a)
	floats.Scale(scale, a)
	floats.AddConst(mean+shift, a)
}

// augment32 accumulates in float64; gonum kernels are float64 only.
func augment32(a []float32, scale, shift float64) {
	if len(a) == 0 || (scale == 1 && shift == 0) {
		return
	}
	var sum float64
	for _, v := range a {
		sum += float64(v)
	}
	mean := sum / float64(len(a))
	for i, v := range a {
		a[i] = float32(mean + (float64(v)-mean)*scale + shift)
	}
}

func clip[T float32 | float64](a []T) {
	for i, v := range a {
		if v > 1 {
			a[i] = 1
		} else if v < 0 {
			a[i] = 0
		}
	}
}

// outOfUnit reports the first value outside [0,1]. NaN counts as outside.
func outOfUnit[T float32 | float64](a []T) (int, float64, bool) {
	for i, v := range a {
		if !(v >= 0 && v <= 1) {
			return i, float64(v), true
		}
	}
	return 0, 0, false
}

func uniqueKeys(keys []batch.ArrayKey) []batch.ArrayKey {
	out := make([]batch.ArrayKey, 0, len(keys))
	for _, k := range keys {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}
