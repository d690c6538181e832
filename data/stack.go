package data

import (
	"fmt"
	"image"
	_ "image/jpeg" // Registers JPEG format
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/image/draw"

	"github.com/b0tShaman/voxaug/batch"
)

var imageExts = []string{".png", ".jpg", ".jpeg"}

// LoadStack reads every image matching pattern (sorted by name) as one z-section
// of a uint8 [z, y, x] volume. Sections are converted to grayscale and resized
// to width x height; zero sizes take the size of the first image.
func LoadStack(pattern string, width, height int) (*batch.Array, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	paths := matches[:0]
	for _, p := range matches {
		if slices.Contains(imageExts, strings.ToLower(filepath.Ext(p))) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images match %q: %w", pattern, os.ErrNotExist)
	}
	slices.Sort(paths)

	var voxels []uint8
	for _, p := range paths {
		section, err := loadSection(p, width, height)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		width, height = section.Rect.Dx(), section.Rect.Dy()
		if voxels == nil {
			voxels = make([]uint8, 0, len(paths)*width*height)
		}
		voxels = append(voxels, section.Pix...)
	}

	shape := []int{len(paths), height, width}
	return batch.NewArray(voxels, shape, batch.SpecFor(shape, nil, nil))
}

// loadSection decodes one image into a tightly packed gray image of the given size.
func loadSection(path string, width, height int) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if width == 0 || height == 0 {
		width, height = bounds.Dx(), bounds.Dy()
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(dst, dst.Rect, src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Rect, src, bounds, draw.Src, nil)
	}
	return dst, nil
}
