package augment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/b0tShaman/voxaug/batch"
)

// Normalize converts arrays to floating point and scales them by Factor.
// A zero Factor picks the dtype default: 1/255 for uint8, 1/65535 for uint16,
// 1/(2^32-1) for uint32 and 1 for float input. Other integer types need an
// explicit Factor.
type Normalize struct {
	Arrays []batch.ArrayKey
	Factor float64
	// DType is the output type, Float32 unless set to Float64.
	DType batch.DType
}

func (n Normalize) Process(b *batch.Batch) error {
	for _, key := range n.Arrays {
		a, ok := b.Get(key)
		if !ok {
			continue
		}
		factor := n.Factor
		if factor == 0 {
			f, ok := defaultFactor(a.DType())
			if !ok {
				return fmt.Errorf("%w: no default normalization factor for %s array %s", ErrDType, a.DType(), key)
			}
			factor = f
		}
		values := a.Float64s()
		if values == nil {
			return fmt.Errorf("%w: array %s holds %T", ErrDType, key, a.Data)
		}
		floats.Scale(factor, values)
		if n.DType == batch.Float64 {
			a.Data = values
			continue
		}
		out := make([]float32, len(values))
		for i, v := range values {
			out[i] = float32(v)
		}
		a.Data = out
	}
	return nil
}

func defaultFactor(dt batch.DType) (float64, bool) {
	switch dt {
	case batch.Uint8:
		return 1.0 / math.MaxUint8, true
	case batch.Uint16:
		return 1.0 / math.MaxUint16, true
	case batch.Uint32:
		return 1.0 / math.MaxUint32, true
	case batch.Float32, batch.Float64:
		return 1, true
	default:
		return 0, false
	}
}
