// Package config loads the settings of a voxaug run: defaults, then a yaml
// file, then VOXAUG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"github.com/b0tShaman/voxaug/augment"
	"github.com/b0tShaman/voxaug/batch"
)

// ErrInvalid: the loaded configuration cannot drive a run.
var ErrInvalid = errors.New("invalid configuration")

const EnvPrefix = "VOXAUG_"

// Input maps one array key to the volume it is loaded from.
type Input struct {
	// Key is the array key, e.g. RAW
	Key string `koanf:"key" yaml:"key"`
	// Path is a fits file, a directory of images or a glob pattern
	Path string `koanf:"path" yaml:"path"`
	// VoxelSize overrides the voxel size found in the file, leading axis first
	VoxelSize []int `koanf:"voxel_size" yaml:"voxel_size,omitempty"`
	// Offset overrides the ROI offset, in physical units
	Offset []int `koanf:"offset" yaml:"offset,omitempty"`
	// Width and Height resize image stacks; zero keeps the image size
	Width  int `koanf:"width" yaml:"width,omitempty"`
	Height int `koanf:"height" yaml:"height,omitempty"`
}

// Augment mirrors augment.IntensityConfig. Arrays may be a list or a single
// comma separated string.
type Augment struct {
	Arrays       []string `koanf:"arrays" yaml:"arrays"`
	ScaleMin     float64  `koanf:"scale_min" yaml:"scale_min"`
	ScaleMax     float64  `koanf:"scale_max" yaml:"scale_max"`
	ShiftMin     float64  `koanf:"shift_min" yaml:"shift_min"`
	ShiftMax     float64  `koanf:"shift_max" yaml:"shift_max"`
	ZSectionWise bool     `koanf:"z_section_wise" yaml:"z_section_wise"`
}

type Preview struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	Width   int  `koanf:"width" yaml:"width"`
	Height  int  `koanf:"height" yaml:"height"`
}

// Config is the full run configuration.
type Config struct {
	LogLevel string `koanf:"log_level" yaml:"log_level"`
	// Batches is how many augmented batches to produce
	Batches int `koanf:"batches" yaml:"batches"`
	// Workers is the pipeline concurrency; 0 uses every CPU
	Workers int `koanf:"workers" yaml:"workers"`
	// Seed makes a run reproducible; 0 draws a fresh seed
	Seed uint64 `koanf:"seed" yaml:"seed"`
	// Output is the directory batches are written to
	Output string `koanf:"output" yaml:"output"`
	// KeepOriginal stores the normalized, unaugmented value of every augmented
	// array as <KEY>-original
	KeepOriginal bool     `koanf:"keep_original" yaml:"keep_original"`
	Inputs       []Input  `koanf:"inputs" yaml:"inputs"`
	Normalize    []string `koanf:"normalize" yaml:"normalize"`
	Augment      Augment  `koanf:"augment" yaml:"augment"`
	Preview      Preview  `koanf:"preview" yaml:"preview"`
}

func Default() Config {
	return Config{
		LogLevel:     "info",
		Batches:      1,
		Output:       "out",
		KeepOriginal: true,
		Inputs:       []Input{},
		Normalize:    []string{"RAW"},
		Augment: Augment{
			Arrays:   []string{"RAW"},
			ScaleMin: 0.9,
			ScaleMax: 1.1,
			ShiftMin: -0.1,
			ShiftMax: 0.1,
		},
		Preview: Preview{Width: 0, Height: 0},
	}
}

// Load layers the defaults, the yaml file at path (skipped when it does not
// exist) and the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return Config{}, err
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.Batches < 0 || c.Workers < 0 {
		return fmt.Errorf("%w: batches %d and workers %d must not be negative", ErrInvalid, c.Batches, c.Workers)
	}
	seen := map[string]bool{}
	for i, in := range c.Inputs {
		if in.Key == "" || in.Path == "" {
			return fmt.Errorf("%w: input %d needs a key and a path", ErrInvalid, i)
		}
		if seen[in.Key] {
			return fmt.Errorf("%w: input key %s listed twice", ErrInvalid, in.Key)
		}
		seen[in.Key] = true
	}
	if c.Augment.ScaleMin > c.Augment.ScaleMax || c.Augment.ShiftMin > c.Augment.ShiftMax {
		return fmt.Errorf("%w: augment ranges [%v,%v] and [%v,%v] must be ordered", ErrInvalid,
			c.Augment.ScaleMin, c.Augment.ScaleMax, c.Augment.ShiftMin, c.Augment.ShiftMax)
	}
	return nil
}

// Intensity converts the augment section into an operator configuration.
func (a Augment) Intensity() augment.IntensityConfig {
	return augment.IntensityConfig{
		Arrays:       Keys(a.Arrays),
		ScaleMin:     a.ScaleMin,
		ScaleMax:     a.ScaleMax,
		ShiftMin:     a.ShiftMin,
		ShiftMax:     a.ShiftMax,
		ZSectionWise: a.ZSectionWise,
	}
}

// Keys splits comma separated entries, trims names and drops empty ones.
func Keys(names []string) []batch.ArrayKey {
	keys := make([]batch.ArrayKey, 0, len(names))
	for _, entry := range names {
		for _, n := range strings.Split(entry, ",") {
			if n = strings.TrimSpace(n); n != "" {
				keys = append(keys, batch.ArrayKey(n))
			}
		}
	}
	return keys
}

// Marshal renders c as yaml, e.g. for a starter config file.
func (c Config) Marshal() ([]byte, error) {
	return yml.Marshal(c)
}
