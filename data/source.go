// Package data loads and stores the volumes that feed a pipeline.
package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/b0tShaman/voxaug/batch"
)

// VolumeSource serves the same arrays in every batch. Each batch gets deep
// copies, so filters never touch the loaded volumes. Add arrays before the
// first Provide.
type VolumeSource struct {
	arrays map[batch.ArrayKey]*batch.Array
}

func NewVolumeSource() *VolumeSource {
	return &VolumeSource{arrays: make(map[batch.ArrayKey]*batch.Array)}
}

func (s *VolumeSource) Add(key batch.ArrayKey, a *batch.Array) {
	s.arrays[key] = a
}

func (s *VolumeSource) Provide(ctx context.Context) (*batch.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := batch.NewBatch()
	for k, a := range s.arrays {
		b.Set(k, a.Copy())
	}
	return b, nil
}

// Open loads a volume from a fits file or from an image stack given as a
// directory or a glob pattern. width and height only apply to stacks.
func Open(path string, width, height int) (*batch.Array, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		a, err := ReadFits(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return a, nil
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "*")
	}
	return LoadStack(path, width, height)
}

// Override replaces the ArraySpec of a with one built from voxelSize and offset.
// nil arguments keep the current values.
func Override(a *batch.Array, offset, voxelSize batch.Coordinate) error {
	if voxelSize == nil {
		voxelSize = a.Spec.VoxelSize
	}
	if offset == nil {
		offset = a.Spec.Roi.Offset
	}
	if len(voxelSize) != a.Dims() || len(offset) != a.Dims() {
		return fmt.Errorf("%w: %dD array with voxel size %v and offset %v", batch.ErrIncompatible, a.Dims(), voxelSize, offset)
	}
	a.Spec = batch.SpecFor(a.Shape, offset.Clone(), voxelSize.Clone())
	return nil
}
