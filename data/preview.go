package data

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"

	"github.com/b0tShaman/voxaug/batch"
)

// SectionMatrix copies z-section z of a 3D array into a [y, x] matrix.
// A 2D array is its own section 0.
func SectionMatrix(a *batch.Array, z int) (*mat.Dense, error) {
	sec := a
	if a.Dims() == 3 {
		var err error
		if sec, err = a.Section(z); err != nil {
			return nil, err
		}
	} else if a.Dims() != 2 || z != 0 {
		return nil, fmt.Errorf("%w: no section %d in %dD array", ErrUnsupported, z, a.Dims())
	}
	rows, cols := sec.Shape[0], sec.Shape[1]
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty section", ErrUnsupported)
	}
	return mat.NewDense(rows, cols, sec.Float64s()), nil
}

// WriteSectionPNG renders one z-section as an 8-bit PNG. Float data is taken
// to be in [0,1]. Non-zero width and height resize the output.
func WriteSectionPNG(w io.Writer, a *batch.Array, z, width, height int) error {
	var factor float64
	switch a.DType() {
	case batch.Float32, batch.Float64:
		factor = math.MaxUint8
	case batch.Uint8:
		factor = 1
	case batch.Uint16:
		factor = 1.0 / 257
	default:
		return fmt.Errorf("%w: no preview for %s arrays", ErrUnsupported, a.DType())
	}

	m, err := SectionMatrix(a, z)
	if err != nil {
		return err
	}
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := math.Round(m.At(y, x) * factor)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(math.MaxUint8, v)))
		}
	}

	var out image.Image = img
	if width > 0 && height > 0 && (width != cols || height != rows) {
		dst := image.NewGray(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Rect, img, img.Bounds(), draw.Src, nil)
		out = dst
	}
	return png.Encode(w, out)
}
