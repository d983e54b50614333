package publisher

import (
	"sync"

	"inventoryconsolidator/internal/inventory"
)

// Sequencer hands out strictly increasing sequence numbers per key. Keys are
// independent; there is no store-wide counter.
type Sequencer struct {
	mu   sync.Mutex
	last map[inventory.Key]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{last: make(map[inventory.Key]uint64)}
}

// Next returns the next sequence for key, starting at 1.
func (s *Sequencer) Next(key inventory.Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[key]++
	return s.last[key]
}

// Seed resumes key after last, e.g. from a persisted high-water mark. It
// never moves a key backwards.
func (s *Sequencer) Seed(key inventory.Key, last uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last > s.last[key] {
		s.last[key] = last
	}
}
