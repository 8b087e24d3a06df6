// Package ports defines the interfaces the orchestration core uses to talk
// to its external collaborators: event transport, run-state persistence and
// metrics. Adapters live under pkg/adapters.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/taskdag/pkg/domain"
)

// Event is the wire form of a task event published on the bus.
type Event struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	TaskID    string            `json:"task_id"`
	Status    domain.TaskStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// EventHandler processes a single event delivered by the bus.
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes task events to interested observers. Implementations
// must never let one failing handler affect delivery to others.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// RunState is a point-in-time snapshot of a run's derived state, persisted
// so supervising processes can inspect progress. The orchestrator remains
// the owner of in-memory truth; stores are write-through collaborators.
type RunState struct {
	RunID     string                             `json:"run_id"`
	Graph     *domain.TaskGraph                  `json:"graph"`
	Statuses  map[string]domain.TaskStatus       `json:"statuses"`
	Results   map[string]*domain.ExecutionResult `json:"results"`
	UpdatedAt time.Time                          `json:"updated_at"`
}

// RunStore persists run state snapshots.
type RunStore interface {
	Save(ctx context.Context, state *RunState) error
	Load(ctx context.Context, runID string) (*RunState, error)
	Delete(ctx context.Context, runID string) error
	List(ctx context.Context) ([]string, error)
}

// MetricsCollector records orchestration metrics.
type MetricsCollector interface {
	RecordGraphLoaded(valid bool)
	RecordGraphExecuted(status string, duration time.Duration)
	RecordTaskExecuted(status string, duration time.Duration)
	RecordTaskCancelled()
	SetRunningTasks(count int)
	RecordWorkerPoolStatus(idle, busy int)
}
