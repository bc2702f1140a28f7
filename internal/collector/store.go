package collector

import (
	"sync"

	"github.com/quantfold/basisarb/internal/model"
)

// Store holds the latest published snapshot vectors. Writers replace whole
// slices under one lock so readers see either the previous tick or the new
// one, never a partial merge.
type Store struct {
	mu      sync.RWMutex
	perps   []model.PerpSnapshot
	spots   []model.SpotSnapshot
	unified []model.UnifiedSnapshot
}

func NewStore() *Store { return &Store{} }

// Replace swaps all three vectors atomically.
func (s *Store) Replace(perps []model.PerpSnapshot, spots []model.SpotSnapshot, unified []model.UnifiedSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perps = perps
	s.spots = spots
	s.unified = unified
}

// Perps returns a copy of the latest perp snapshots.
func (s *Store) Perps() []model.PerpSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PerpSnapshot, len(s.perps))
	copy(out, s.perps)
	return out
}

// Spots returns a copy of the latest spot snapshots.
func (s *Store) Spots() []model.SpotSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SpotSnapshot, len(s.spots))
	copy(out, s.spots)
	return out
}

// Unified returns a copy of the latest unified snapshots.
func (s *Store) Unified() []model.UnifiedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UnifiedSnapshot, len(s.unified))
	copy(out, s.unified)
	return out
}
