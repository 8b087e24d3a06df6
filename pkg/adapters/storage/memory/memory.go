package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/taskdag/pkg/ports"
)

// RunStore implements ports.RunStore with an in-memory map. Suitable for
// tests and single-process deployments.
type RunStore struct {
	states map[string]*ports.RunState
	mu     sync.RWMutex
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		states: make(map[string]*ports.RunState),
	}
}

// Save persists a snapshot of the run state.
func (s *RunStore) Save(ctx context.Context, state *ports.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shallow copy of the envelope; maps are replaced wholesale on every
	// save, so callers never observe partial updates.
	stateCopy := *state
	s.states[state.RunID] = &stateCopy
	return nil
}

// Load retrieves the stored state for a run.
func (s *RunStore) Load(ctx context.Context, runID string) (*ports.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[runID]
	if !ok {
		return nil, fmt.Errorf("run state not found: %s", runID)
	}
	return state, nil
}

// Delete removes the stored state for a run.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, runID)
	return nil
}

// List returns the IDs of all runs with stored state.
func (s *RunStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runIDs := make([]string, 0, len(s.states))
	for id := range s.states {
		runIDs = append(runIDs, id)
	}
	return runIDs, nil
}
