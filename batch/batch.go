// Package batch defines the unit of data that flows through a pipeline and the
// contracts of the stages that produce and transform it.
package batch

import (
	"context"
	"errors"
	"slices"
)

var (
	// ErrIncompatible: coordinate arithmetic between mismatched or non-divisible operands.
	ErrIncompatible = errors.New("incompatible coordinates")
	// ErrShape: buffer length does not match the declared shape.
	ErrShape = errors.New("shape mismatch")
)

// ArrayKey names an array within a batch, e.g. "RAW".
type ArrayKey string

func (k ArrayKey) String() string { return string(k) }

// Batch is one unit of data: a set of named arrays. A batch is owned by
// whoever holds it; filters mutate it in place.
type Batch struct {
	ID     int
	Arrays map[ArrayKey]*Array
}

// Source produces batches. Implementations must be safe for concurrent use.
type Source interface {
	Provide(ctx context.Context) (*Batch, error)
}

// Filter transforms a batch in place.
type Filter interface {
	Process(b *Batch) error
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(b *Batch) error

func (f FilterFunc) Process(b *Batch) error { return f(b) }

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{Arrays: make(map[ArrayKey]*Array)}
}

// Get returns the array stored under k.
func (b *Batch) Get(k ArrayKey) (*Array, bool) {
	a, ok := b.Arrays[k]
	return a, ok
}

// Set stores a under k, replacing any previous array.
func (b *Batch) Set(k ArrayKey, a *Array) {
	if b.Arrays == nil {
		b.Arrays = make(map[ArrayKey]*Array)
	}
	b.Arrays[k] = a
}

// Keys returns the array keys in sorted order.
func (b *Batch) Keys() []ArrayKey {
	keys := make([]ArrayKey, 0, len(b.Arrays))
	for k := range b.Arrays {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Copy deep-copies every array.
func (b *Batch) Copy() *Batch {
	out := &Batch{ID: b.ID, Arrays: make(map[ArrayKey]*Array, len(b.Arrays))}
	for k, a := range b.Arrays {
		out.Arrays[k] = a.Copy()
	}
	return out
}

// Duplicate copies each listed array to <key><Suffix> so later filters can
// change the original while the copy keeps the input values.
type Duplicate struct {
	Keys   []ArrayKey
	Suffix string
}

func (d Duplicate) Process(b *Batch) error {
	suffix := d.Suffix
	if suffix == "" {
		suffix = "-original"
	}
	for _, k := range d.Keys {
		if a, ok := b.Arrays[k]; ok {
			b.Arrays[k+ArrayKey(suffix)] = a.Copy()
		}
	}
	return nil
}
