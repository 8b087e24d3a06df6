package domain

import "time"

// ExecutionResult is the recorded outcome of a single task. It is immutable
// once recorded by the orchestrator.
type ExecutionResult struct {
	TaskID   string        `json:"task_id"`
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`

	// FilesModified is a best-effort list of files under the task's working
	// directory whose modification time changed during execution.
	FilesModified []string `json:"files_modified,omitempty"`

	// Error carries the failure message for launch errors, timeouts and
	// dependency failures. Empty on success.
	Error string `json:"error,omitempty"`
}

// TaskEvent is one entry in the append-only audit trail of status
// transitions. Retention is bounded in practice but logically unbounded.
type TaskEvent struct {
	TaskID    string        `json:"task_id"`
	Status    TaskStatus    `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
	Message   string        `json:"message,omitempty"`
}
