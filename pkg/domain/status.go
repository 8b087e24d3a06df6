package domain

// TaskStatus is the lifecycle state of a task within a loaded graph.
//
// Transitions are monotonic: pending → running → {completed | failed |
// cancelled}. Only an explicit reset (or loading a new graph) returns a task
// to pending.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the monotonic lifecycle permits moving
// from s to next.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusFailed || next == TaskStatusCancelled
	case TaskStatusRunning:
		return next.IsTerminal()
	}
	return false
}
