package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// ResultStore implements ports.ResultStore in memory.
// Safe for concurrent use.
type ResultStore struct {
	mu   sync.RWMutex
	runs map[string][]ports.ResultRecord
	// order of first Save, oldest first
	order []string
}

// NewResultStore creates an empty in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		runs: make(map[string][]ports.ResultRecord),
	}
}

// Save appends a copy of rec to the results of runID.
func (s *ResultStore) Save(_ context.Context, runID string, rec ports.ResultRecord) error {
	rec.Failures = slices.Clone(rec.Failures)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		s.order = append(s.order, runID)
	}
	s.runs[runID] = append(s.runs[runID], rec)
	return nil
}

// List returns a copy of the results of runID.
func (s *ResultStore) List(_ context.Context, runID string) ([]ports.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	out := make([]ports.ResultRecord, len(records))
	for i, rec := range records {
		rec.Failures = slices.Clone(rec.Failures)
		out[i] = rec
	}
	return out, nil
}

// Runs returns the known run IDs, most recent first.
func (s *ResultStore) Runs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := slices.Clone(s.order)
	slices.Reverse(runs)
	return runs, nil
}

// Delete removes the results of runID.
func (s *ResultStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == runID })
	return nil
}
