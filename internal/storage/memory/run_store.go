package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/scrape-gateway/internal/runs"
)

// RunStore keeps run rows in insertion order.
type RunStore struct {
	mu   sync.RWMutex
	runs []runs.Run
	byID map[string]int
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{byID: make(map[string]int)}
}

// StoreRun appends run; IDs must be unique.
func (s *RunStore) StoreRun(_ context.Context, run runs.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[run.ID]; exists {
		return fmt.Errorf("run %s already stored", run.ID)
	}
	s.byID[run.ID] = len(s.runs)
	s.runs = append(s.runs, run)
	return nil
}

// Get returns the run stored under id.
func (s *RunStore) Get(id string) (runs.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return runs.Run{}, false
	}
	return s.runs[idx], true
}

// Runs returns a copy of all stored runs.
func (s *RunStore) Runs() []runs.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]runs.Run, len(s.runs))
	copy(out, s.runs)
	return out
}
