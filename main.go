package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/b0tShaman/voxaug/augment"
	"github.com/b0tShaman/voxaug/batch"
	"github.com/b0tShaman/voxaug/config"
	"github.com/b0tShaman/voxaug/data"
)

var (
	Version = "0.3"

	ConfigFileName = "voxaug.yml"
)

func root() {
	str := `voxaug produces randomly augmented copies of microscopy volumes for training.
Each batch holds every configured input, normalized to [0,1] and passed through
a random intensity scale and shift.

Usage:
	voxaug <command> [config file]

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `voxaug is configured by voxaug.yml in the working directory, or the file given
after the command. Every key can be overridden from the environment with the
VOXAUG_ prefix; a double underscore separates nested keys, e.g.

	VOXAUG_AUGMENT__Z_SECTION_WISE=true voxaug run

Inputs are fits files (.fits, .fit, .fts), directories of png/jpeg sections or
glob patterns over them. Sections are sorted by file name and become the
leading (z) axis. voxel_size and offset override what the fits header says and
are given leading axis first, offsets in physical units.

augment.arrays may be a list or a single comma separated string. With
z_section_wise every z-section gets its own scale and shift; only one 3D array
may be listed then.

Batches are written to <output>/batch-NNNN/<KEY>.fits, with one png per
z-section when preview.enabled is set.`
	fmt.Println(str)
}

func mkconf(c config.Config) error {
	out, err := c.Marshal()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(ConfigFileName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printconf(c config.Config) error {
	out, err := c.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func pversion() {
	fmt.Printf("voxaug version %v\n", Version)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// coord maps an unset config list to nil, which keeps the loaded value.
func coord(v []int) batch.Coordinate {
	if len(v) == 0 {
		return nil
	}
	return batch.Coordinate(v)
}

func loadInputs(c config.Config, logger *slog.Logger) (*data.VolumeSource, error) {
	if len(c.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", config.ErrInvalid)
	}
	src := data.NewVolumeSource()
	for _, in := range c.Inputs {
		a, err := data.Open(in.Path, in.Width, in.Height)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Key, err)
		}
		if err := data.Override(a, coord(in.Offset), coord(in.VoxelSize)); err != nil {
			return nil, fmt.Errorf("input %s: %w", in.Key, err)
		}
		logger.Info("loaded input", "key", in.Key, "path", in.Path,
			"dtype", a.DType(), "shape", a.Shape, "roi", a.Spec.Roi, "voxel_size", a.Spec.VoxelSize)
		src.Add(batch.ArrayKey(in.Key), a)
	}
	return src, nil
}

// newPipeline chains normalize, the optional copy of the unaugmented arrays
// and the intensity augmentation.
func newPipeline(src batch.Source, c config.Config, rng rand.Source) *batch.Pipeline {
	ic := c.Augment.Intensity()
	filters := []batch.Filter{augment.Normalize{Arrays: config.Keys(c.Normalize)}}
	if c.KeepOriginal {
		filters = append(filters, batch.Duplicate{Keys: ic.Arrays})
	}
	filters = append(filters, augment.NewIntensityAugment(ic, augment.WithSource(rng)))
	return batch.NewPipeline(src, filters...)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// writeBatch stores every array of b under root/batch-NNNN and returns that
// directory.
func writeBatch(root string, b *batch.Batch, preview config.Preview) (string, error) {
	dir := filepath.Join(root, fmt.Sprintf("batch-%04d", b.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for _, k := range b.Keys() {
		a := b.Arrays[k]
		err := writeFile(filepath.Join(dir, k.String()+".fits"), func(w io.Writer) error {
			return data.WriteFits(w, a)
		})
		if err != nil {
			return "", err
		}
		if !preview.Enabled || a.Dims() < 2 || a.Dims() > 3 {
			continue
		}
		sections := 1
		if a.Dims() == 3 {
			sections = a.Shape[0]
		}
		for z := 0; z < sections; z++ {
			err := writeFile(filepath.Join(dir, fmt.Sprintf("%s-z%03d.png", k, z)), func(w io.Writer) error {
				return data.WriteSectionPNG(w, a, z, preview.Width, preview.Height)
			})
			if err != nil {
				return "", err
			}
		}
	}
	return dir, nil
}

func run(ctx context.Context, c config.Config, logger *slog.Logger) error {
	src, err := loadInputs(c, logger)
	if err != nil {
		return err
	}

	seed := c.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	logger.Info("starting run", "batches", c.Batches, "workers", c.Workers, "seed", seed, "output", c.Output)

	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return err
	}
	p := newPipeline(src, c, augment.LockedSource(augment.NewSource(seed)))

	start := time.Now()
	err = p.Run(ctx, batch.RunConfig{Batches: c.Batches, Workers: c.Workers}, func(b *batch.Batch) error {
		dir, err := writeBatch(c.Output, b, c.Preview)
		if err != nil {
			return fmt.Errorf("batch %d: %w", b.ID, err)
		}
		logger.Debug("wrote batch", "id", b.ID, "dir", dir)
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("run complete", "batches", c.Batches, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	if len(args) > 2 {
		ConfigFileName = args[2]
	}
	cmd := strings.ToLower(args[1])

	switch cmd {
	case "help":
		help()
		return
	case "version":
		pversion()
		return
	}

	c, err := config.Load(ConfigFileName)
	logger := newLogger(c.LogLevel)
	if err != nil {
		logger.Error("loading config", "file", ConfigFileName, "err", err)
		os.Exit(1)
	}

	switch cmd {
	case "mkconf":
		err = mkconf(c)
	case "conf":
		err = printconf(c)
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = run(ctx, c, logger)
		stop()
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted")
		}
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error(cmd, "err", err)
		os.Exit(1)
	}
}
