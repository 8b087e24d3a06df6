package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aescanero/taskdag/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "taskdag:run:"

// RunStore implements ports.RunStore on Redis. Snapshots are stored as JSON
// under a per-run key with a TTL, so stale runs expire on their own.
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStore creates a new Redis-backed run store.
func NewRunStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	return &RunStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists a snapshot of the run state with the configured TTL.
func (s *RunStore) Save(ctx context.Context, state *ports.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := s.client.Set(ctx, runKey(state.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}

	s.logger.Debug("run state saved",
		zap.String("run_id", state.RunID),
		zap.Int("tasks", len(state.Statuses)))

	return nil
}

// Load retrieves the stored state for a run.
func (s *RunStore) Load(ctx context.Context, runID string) (*ports.RunState, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run state not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}

	var state ports.RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}

	return &state, nil
}

// Delete removes the stored state for a run.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run state: %w", err)
	}

	s.logger.Debug("run state deleted", zap.String("run_id", runID))

	return nil
}

// List returns the IDs of all runs with stored state, paging through the
// keyspace with SCAN.
func (s *RunStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan run keys: %w", err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	runIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(keyPrefix) {
			runIDs = append(runIDs, key[len(keyPrefix):])
		}
	}

	return runIDs, nil
}

func runKey(runID string) string {
	return keyPrefix + runID
}
