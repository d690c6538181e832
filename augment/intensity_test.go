package augment

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/b0tShaman/voxaug/batch"
)

const (
	RAW = batch.ArrayKey("RAW")
	AUX = batch.ArrayKey("AUX")
)

func volume3D(t *testing.T, data []float64, shape []int, voxelSize batch.Coordinate) *batch.Array {
	t.Helper()
	a, err := batch.NewArray(data, shape, batch.SpecFor(shape, nil, voxelSize))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func randomUnit(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()
	}
	return out
}

func TestIntensityRangePreserved(t *testing.T) {
	rng := rand.New(NewSource(7))
	for _, zwise := range []bool{false, true} {
		a := volume3D(t, randomUnit(rng, 4*8*8), []int{4, 8, 8}, nil)
		b := batch.NewBatch()
		b.Set(RAW, a)

		ia := NewIntensityAugment(IntensityConfig{
			Arrays:   []batch.ArrayKey{RAW},
			ScaleMin: 0.1, ScaleMax: 3,
			ShiftMin: -0.6, ShiftMax: 0.6,
			ZSectionWise: zwise,
		}, WithSource(NewSource(1)))

		for i := 0; i < 20; i++ {
			if err := ia.Process(b); err != nil {
				t.Fatalf("zwise=%v: %v", zwise, err)
			}
			for j, v := range a.Data.([]float64) {
				if v < 0 || v > 1 {
					t.Fatalf("zwise=%v: value %v at %d left [0,1]", zwise, v, j)
				}
			}
		}
	}
}

func TestIntensityKeepsShapeDTypeSpecAndBuffer(t *testing.T) {
	data := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	shape := []int{2, 2, 2}
	spec := batch.SpecFor(shape, batch.Coordinate{40, 0, 0}, batch.Coordinate{40, 4, 4})
	a := batch.MustArray(data, shape, spec)
	b := batch.NewBatch()
	b.Set(RAW, a)

	ia := Intensity(Arrays(RAW), Scale(0.5, 1.5), Shift(-0.2, 0.2), ZSectionWise(true), WithSource(NewSource(3)))
	if err := ia.Process(b); err != nil {
		t.Fatal(err)
	}

	got, ok := b.Get(RAW)
	if !ok || got != a {
		t.Fatal("array was replaced")
	}
	if len(b.Arrays) != 1 {
		t.Fatalf("batch has %d arrays, want 1", len(b.Arrays))
	}
	if got.DType() != batch.Float32 {
		t.Errorf("dtype changed to %s", got.DType())
	}
	if diff := cmp.Diff([]int{2, 2, 2}, got.Shape); diff != "" {
		t.Errorf("shape changed (-want +got):\n%s", diff)
	}
	if !got.Spec.Equal(spec) {
		t.Errorf("spec changed: %+v", got.Spec)
	}
	// mutated in place: the caller's slice sees the new values
	buf := got.Data.([]float32)
	if &buf[0] != &data[0] {
		t.Error("buffer was reallocated")
	}
}

func TestIntensityJointTransform(t *testing.T) {
	rawIn := []float64{0.2, 0.4, 0.6}
	auxIn := []float64{0.3, 0.5, 0.7, 0.5}
	b := batch.NewBatch()
	b.Set(RAW, batch.MustArray(append([]float64(nil), rawIn...), []int{3}, batch.SpecFor([]int{3}, nil, nil)))
	b.Set(AUX, batch.MustArray(append([]float64(nil), auxIn...), []int{2, 2}, batch.SpecFor([]int{2, 2}, nil, nil)))

	ia := Intensity(Arrays(RAW, AUX), Scale(0.5, 1.5), Shift(-0.1, 0.1), WithSource(NewSource(11)))
	if err := ia.Process(b); err != nil {
		t.Fatal(err)
	}

	raw := b.Arrays[RAW].Data.([]float64)
	scale := (raw[2] - raw[0]) / (rawIn[2] - rawIn[0])
	shift := raw[1] - 0.4
	if scale < 0.5 || scale > 1.5 || shift < -0.1 || shift > 0.1 {
		t.Fatalf("recovered scale %v shift %v outside the configured ranges", scale, shift)
	}

	want := make([]float64, len(auxIn))
	for i, v := range auxIn {
		want[i] = 0.5 + (v-0.5)*scale + shift
	}
	if diff := cmp.Diff(want, b.Arrays[AUX].Data.([]float64), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("AUX did not get the RAW transform (-want +got):\n%s", diff)
	}
}

func TestIntensityZSectionsIndependent(t *testing.T) {
	const nz = 5
	section := []float64{0.4, 0.6, 0.4, 0.6}
	data := make([]float64, 0, nz*len(section))
	for z := 0; z < nz; z++ {
		data = append(data, section...)
	}
	// 5 sections at 40nm over a 200nm roi
	a := volume3D(t, data, []int{nz, 2, 2}, batch.Coordinate{40, 4, 4})
	b := batch.NewBatch()
	b.Set(RAW, a)

	ia := Intensity(Arrays(RAW), Scale(0.5, 1.5), Shift(-0.2, 0.2), ZSectionWise(true), WithSource(NewSource(5)))
	if err := ia.Process(b); err != nil {
		t.Fatal(err)
	}

	out := a.Data.([]float64)
	seen := map[[2]float64]bool{}
	for z := 0; z < nz; z++ {
		s := out[z*4 : (z+1)*4]
		// mean 0.5: s[0] = 0.5 - 0.1*scale + shift, s[1] = 0.5 + 0.1*scale + shift
		scale := (s[1] - s[0]) / 0.2
		shift := (s[0]+s[1])/2 - 0.5
		if scale < 0.5-1e-9 || scale > 1.5+1e-9 || shift < -0.2-1e-9 || shift > 0.2+1e-9 {
			t.Errorf("section %d: scale %v shift %v outside ranges", z, scale, shift)
		}
		if diff := cmp.Diff(s[0:2], s[2:4], cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("section %d not transformed uniformly:\n%s", z, diff)
		}
		seen[[2]float64{scale, shift}] = true
	}
	if len(seen) != nz {
		t.Errorf("got %d distinct draws for %d sections", len(seen), nz)
	}
}

func TestIntensityZSectionConstantSectionsDiffer(t *testing.T) {
	a := volume3D(t, []float64{0.5, 0.5, 0.5, 0.5}, []int{2, 1, 2}, nil)
	b := batch.NewBatch()
	b.Set(RAW, a)

	ia := Intensity(Arrays(RAW), Shift(-0.3, 0.3), ZSectionWise(true), WithSource(NewSource(2)))
	if err := ia.Process(b); err != nil {
		t.Fatal(err)
	}
	out := a.Data.([]float64)
	if out[0] != out[1] || out[2] != out[3] {
		t.Errorf("constant section lost uniformity: %v", out)
	}
	if out[0] == out[2] {
		t.Errorf("sections share one draw: %v", out)
	}
}

func TestIntensityIdentity(t *testing.T) {
	in := randomUnit(rand.New(NewSource(3)), 64)
	for _, zwise := range []bool{false, true} {
		a := volume3D(t, append([]float64(nil), in...), []int{4, 4, 4}, nil)
		b := batch.NewBatch()
		b.Set(RAW, a)

		ia := NewIntensityAugment(IntensityConfig{
			Arrays:   []batch.ArrayKey{RAW},
			ScaleMin: 1, ScaleMax: 1,
			ZSectionWise: zwise,
		})
		if err := ia.Process(b); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(in, a.Data.([]float64)); diff != "" {
			t.Errorf("zwise=%v: identity changed values (-want +got):\n%s", zwise, diff)
		}
	}
}

func TestIntensityClips(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"uniform", []float64{1, 1}, []float64{1, 1}},
		{"spread", []float64{0, 1}, []float64{0, 1}},
		{"interior", []float64{0.25, 0.75}, []float64{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := batch.NewBatch()
			b.Set(RAW, batch.MustArray(tt.in, []int{2}, batch.SpecFor([]int{2}, nil, nil)))
			if err := Intensity(Arrays(RAW), Scale(2, 2)).Process(b); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, b.Arrays[RAW].Data.([]float64)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntensityFloat32(t *testing.T) {
	b := batch.NewBatch()
	b.Set(RAW, batch.MustArray([]float32{0, 0.5, 1}, []int{3}, batch.SpecFor([]int{3}, nil, nil)))
	if err := Intensity(Arrays(RAW), Scale(0.5, 0.5), Shift(0.1, 0.1)).Process(b); err != nil {
		t.Fatal(err)
	}
	want := []float32{0.35, 0.6, 0.85}
	if diff := cmp.Diff(want, b.Arrays[RAW].Data.([]float32), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestIntensityPreconditions(t *testing.T) {
	flat := func(data any, shape []int) *batch.Array {
		return &batch.Array{Data: data, Shape: shape, Spec: batch.SpecFor(shape, nil, nil)}
	}
	tests := []struct {
		name   string
		arrays map[batch.ArrayKey]*batch.Array
		opts   []Option
		want   error
	}{
		{
			name:   "integer buffer",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: flat([]uint8{0, 255}, []int{2})},
			opts:   []Option{Arrays(RAW)},
			want:   ErrDType,
		},
		{
			name:   "value above one",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: flat([]float64{0.2, 1.5}, []int{2})},
			opts:   []Option{Arrays(RAW)},
			want:   ErrRange,
		},
		{
			name:   "negative value",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: flat([]float32{-0.1, 0.5}, []int{2})},
			opts:   []Option{Arrays(RAW)},
			want:   ErrRange,
		},
		{
			name:   "nan",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: flat([]float64{math.NaN()}, []int{1})},
			opts:   []Option{Arrays(RAW)},
			want:   ErrRange,
		},
		{
			name:   "z-section-wise on 2D",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: flat([]float64{0, 0, 0, 0}, []int{2, 2})},
			opts:   []Option{Arrays(RAW), ZSectionWise(true)},
			want:   ErrDimensionality,
		},
		{
			name: "z-section-wise on two arrays",
			arrays: map[batch.ArrayKey]*batch.Array{
				RAW: flat([]float64{0}, []int{1, 1, 1}),
				AUX: flat([]float64{0}, []int{1, 1, 1}),
			},
			opts: []Option{Arrays(RAW, AUX), ZSectionWise(true)},
			want: ErrConfigurationUnsupported,
		},
		{
			name: "voxel size disagrees with buffer",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: {
				Data:  make([]float64, 4),
				Shape: []int{4, 1, 1},
				Spec:  batch.ArraySpec{Roi: batch.NewRoi(batch.Coordinate{0, 0, 0}, batch.Coordinate{40, 1, 1}), VoxelSize: batch.Coordinate{20, 1, 1}},
			}},
			opts: []Option{Arrays(RAW), ZSectionWise(true)},
			want: ErrSpecMismatch,
		},
		{
			name: "voxel size does not divide roi",
			arrays: map[batch.ArrayKey]*batch.Array{RAW: {
				Data:  make([]float64, 4),
				Shape: []int{4, 1, 1},
				Spec:  batch.ArraySpec{Roi: batch.NewRoi(batch.Coordinate{0, 0, 0}, batch.Coordinate{45, 1, 1}), VoxelSize: batch.Coordinate{10, 1, 1}},
			}},
			opts: []Option{Arrays(RAW), ZSectionWise(true)},
			want: ErrSpecMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &batch.Batch{Arrays: tt.arrays}
			err := Intensity(tt.opts...).Process(b)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIntensityZSectionUnalignedOffset(t *testing.T) {
	shape := []int{3, 2, 2}
	data := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.2, 0.4, 0.6, 0.8}
	a := batch.MustArray(data, shape, batch.ArraySpec{
		Roi:       batch.NewRoi(batch.Coordinate{13640, 0, 0}, batch.Coordinate{360, 2, 2}),
		VoxelSize: batch.Coordinate{120, 1, 1},
	})
	b := batch.NewBatch()
	b.Set(RAW, a)

	ia := Intensity(Arrays(RAW), Scale(0.5, 1.5), Shift(-0.1, 0.1), ZSectionWise(true), WithSource(NewSource(9)))
	if err := ia.Process(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(batch.Coordinate{13640, 0, 0}, a.Spec.Roi.Offset); diff != "" {
		t.Errorf("offset changed (-want +got):\n%s", diff)
	}
}

func TestIntensityNoPartialApplication(t *testing.T) {
	good := []float64{0.1, 0.9}
	b := batch.NewBatch()
	b.Set(RAW, batch.MustArray(good, []int{2}, batch.SpecFor([]int{2}, nil, nil)))
	b.Set(AUX, batch.MustArray([]float64{0.5, 2}, []int{2}, batch.SpecFor([]int{2}, nil, nil)))

	err := Intensity(Arrays(RAW, AUX), Scale(2, 2), Shift(0.1, 0.1)).Process(b)
	if !errors.Is(err, ErrRange) {
		t.Fatalf("got %v, want ErrRange", err)
	}
	if diff := cmp.Diff([]float64{0.1, 0.9}, good); diff != "" {
		t.Errorf("RAW modified before AUX failed:\n%s", diff)
	}
}

func TestIntensitySkipsMissingKeys(t *testing.T) {
	b := batch.NewBatch()
	b.Set(RAW, batch.MustArray([]float64{0, 1}, []int{2}, batch.SpecFor([]int{2}, nil, nil)))
	if err := Intensity(Arrays("MISSING"), ZSectionWise(true)).Process(b); err != nil {
		t.Fatal(err)
	}
	if err := Intensity(Arrays(RAW, "MISSING"), Scale(2, 2)).Process(b); err != nil {
		t.Fatal(err)
	}
}

func TestIntensitySeedReproducible(t *testing.T) {
	in := randomUnit(rand.New(NewSource(9)), 3*4*4)
	run := func() []float64 {
		a := volume3D(t, append([]float64(nil), in...), []int{3, 4, 4}, nil)
		b := batch.NewBatch()
		b.Set(RAW, a)
		ia := Intensity(Arrays(RAW), Scale(0.8, 1.2), Shift(-0.1, 0.1), ZSectionWise(true), WithSource(NewSource(42)))
		if err := ia.Process(b); err != nil {
			t.Fatal(err)
		}
		return a.Data.([]float64)
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("same seed, different output:\n%s", diff)
	}
}

func TestIntensityConfigDedupesKeys(t *testing.T) {
	ia := Intensity(Arrays(RAW, AUX, RAW))
	if diff := cmp.Diff([]batch.ArrayKey{RAW, AUX}, ia.Config().Arrays); diff != "" {
		t.Error(diff)
	}
}

// --- Benchmarks ---

func benchmarkIntensity(b *testing.B, zwise bool) {
	data := randomUnit(rand.New(NewSource(1)), 32*128*128)
	a, _ := batch.NewArray(data, []int{32, 128, 128}, batch.SpecFor([]int{32, 128, 128}, nil, nil))
	bt := batch.NewBatch()
	bt.Set(RAW, a)
	ia := Intensity(Arrays(RAW), Scale(0.99, 1.01), Shift(-0.001, 0.001), ZSectionWise(zwise), WithSource(NewSource(1)))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err := ia.Process(bt); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIntensity_Whole(b *testing.B)    { benchmarkIntensity(b, false) }
func BenchmarkIntensity_ZSection(b *testing.B) { benchmarkIntensity(b, true) }
