package augment

import (
	"math/rand/v2"
	"sync"
)

// LockedSource serializes access to src so one generator can feed filters
// running on several workers.
func LockedSource(src rand.Source) rand.Source {
	return &lockedSource{src: src}
}

type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

// NewSource returns a seeded PCG source. Equal seeds give equal streams.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
