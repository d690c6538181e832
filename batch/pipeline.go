package batch

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type RunConfig struct {
	Batches int
	Workers int // 0 means GOMAXPROCS
}

// Pipeline pulls batches from a source and pushes each through its filters in order.
type Pipeline struct {
	source  Source
	filters []Filter
}

func NewPipeline(source Source, filters ...Filter) *Pipeline {
	return &Pipeline{source: source, filters: filters}
}

// Next provides one batch and runs it through every filter. A filter error
// aborts the batch.
func (p *Pipeline) Next(ctx context.Context) (*Batch, error) {
	b, err := p.source.Provide(ctx)
	if err != nil {
		return nil, fmt.Errorf("provide: %w", err)
	}
	for i, f := range p.filters {
		if err := f.Process(b); err != nil {
			return nil, fmt.Errorf("filter %d (%T): %w", i, f, err)
		}
	}
	return b, nil
}

// Run produces cfg.Batches batches on cfg.Workers goroutines and hands each to
// sink. sink is called concurrently. The first error cancels outstanding work
// and is returned.
func (p *Pipeline) Run(ctx context.Context, cfg RunConfig, sink func(b *Batch) error) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < cfg.Batches; i++ {
		if gctx.Err() != nil {
			break
		}
		id := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := p.Next(gctx)
			if err != nil {
				return fmt.Errorf("batch %d: %w", id, err)
			}
			b.ID = id
			return sink(b)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
