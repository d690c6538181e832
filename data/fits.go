package data

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/astrogo/fitsio"

	"github.com/b0tShaman/voxaug/batch"
)

// ErrUnsupported: content this package cannot read or write.
var ErrUnsupported = errors.New("unsupported content")

const (
	uint16Zero = 32768

	// FITS keywords are limited to 8 characters; the axis number is appended.
	voxelSizeCard = "VSIZE"
	roiOffsetCard = "ROIOFF"
)

// WriteFits streams a to w as a single-HDU fits image. FITS lists axes
// fastest first, so the shape is written reversed. Voxel size and ROI offset
// go into VSIZEn and ROIOFFn cards.
func WriteFits(w io.Writer, a *batch.Array) error {
	var (
		bitpix int
		pixels any
		cards  []fitsio.Card
	)
	switch v := a.Data.(type) {
	case []uint8:
		bitpix, pixels = 8, v
	case []uint16:
		ints := make([]int16, len(v))
		for i, u := range v {
			ints[i] = int16(u - uint16Zero)
		}
		bitpix, pixels = 16, ints
		cards = append(cards, fitsio.Card{Name: "BZERO", Value: uint16Zero}, fitsio.Card{Name: "BSCALE", Value: 1.0})
	case []int16:
		bitpix, pixels = 16, v
	case []int32:
		bitpix, pixels = 32, v
	case []int64:
		bitpix, pixels = 64, v
	case []float32:
		bitpix, pixels = -32, v
	case []float64:
		bitpix, pixels = -64, v
	default:
		return fmt.Errorf("%w: cannot write %s array as fits", ErrUnsupported, a.DType())
	}

	axes := reversed(a.Shape)
	vs, off := reversed(a.Spec.VoxelSize), reversed(a.Spec.Roi.Offset)
	for i := range axes {
		if i < len(vs) {
			cards = append(cards, fitsio.Card{Name: fmt.Sprintf("%s%d", voxelSizeCard, i+1), Value: vs[i]})
		}
		if i < len(off) {
			cards = append(cards, fitsio.Card{Name: fmt.Sprintf("%s%d", roiOffsetCard, i+1), Value: off[i]})
		}
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(bitpix, axes)
	defer im.Close()
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	if err := im.Write(pixels); err != nil {
		return err
	}
	return fits.Write(im)
}

// ReadFits reads the primary image HDU of a fits stream.
func ReadFits(r io.Reader) (*batch.Array, error) {
	fits, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer fits.Close()

	if len(fits.HDUs()) == 0 {
		return nil, fmt.Errorf("%w: fits stream has no HDU", ErrUnsupported)
	}
	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%w: primary HDU is not an image", ErrUnsupported)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) == 0 {
		return nil, fmt.Errorf("%w: image without axes", ErrUnsupported)
	}
	n := 1
	for _, ax := range axes {
		n *= ax
	}

	var pixels any
	switch hdr.Bitpix() {
	case 8:
		pixels, err = readPixels[uint8](img, n)
	case 16:
		var ints []int16
		if ints, err = readPixels[int16](img, n); err == nil {
			pixels = ints
			if cardInt(hdr, "BZERO", 0) == uint16Zero {
				u := make([]uint16, len(ints))
				for i, v := range ints {
					u[i] = uint16(int32(v) + uint16Zero)
				}
				pixels = u
			}
		}
	case 32:
		pixels, err = readPixels[int32](img, n)
	case 64:
		pixels, err = readPixels[int64](img, n)
	case -32:
		pixels, err = readPixels[float32](img, n)
	case -64:
		pixels, err = readPixels[float64](img, n)
	default:
		return nil, fmt.Errorf("%w: bitpix %d", ErrUnsupported, hdr.Bitpix())
	}
	if err != nil {
		return nil, err
	}

	vs := make(batch.Coordinate, len(axes))
	off := make(batch.Coordinate, len(axes))
	for i := range axes {
		vs[i] = cardInt(hdr, fmt.Sprintf("%s%d", voxelSizeCard, i+1), 1)
		off[i] = cardInt(hdr, fmt.Sprintf("%s%d", roiOffsetCard, i+1), 0)
	}
	shape := reversed(axes)
	return &batch.Array{
		Data:  pixels,
		Shape: shape,
		Spec:  batch.SpecFor(shape, reversed(off), reversed(vs)),
	}, nil
}

func readPixels[T batch.Sample](img fitsio.Image, n int) ([]T, error) {
	buf := make([]T, n)
	if err := img.Read(&buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func cardInt(hdr *fitsio.Header, name string, def int) int {
	card := hdr.Get(name)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return def
	}
}

func reversed[S ~[]E, E any](s S) S {
	out := slices.Clone(s)
	slices.Reverse(out)
	return out
}
