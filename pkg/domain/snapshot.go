package domain

import "time"

// DependencySummary condenses a successful dependency outcome for inclusion
// in a context snapshot.
type DependencySummary struct {
	TaskID        string        `json:"task_id"`
	ExitCode      int           `json:"exit_code"`
	Duration      time.Duration `json:"duration"`
	FilesModified []string      `json:"files_modified,omitempty"`
}

// ContextData is the structured payload of a context snapshot.
type ContextData struct {
	// Config summarizes the effective execution configuration in force.
	Config map[string]string `json:"config"`

	// Dependencies summarizes every dependency with a recorded successful
	// result at snapshot time.
	Dependencies []DependencySummary `json:"dependencies"`
}

// ContextSnapshot is a token-budgeted summary of completed-dependency
// outcomes handed to a task before it runs.
//
// Truncation is advisory: when the token estimate exceeds MaxTokens the
// Truncated flag is set and Summary describes the overflow, but entries are
// not removed from ContextData.
type ContextSnapshot struct {
	TaskID     string      `json:"task_id"`
	BaseTokens int         `json:"base_tokens"`
	MaxTokens  int         `json:"max_tokens"`
	Truncated  bool        `json:"truncated"`
	Context    ContextData `json:"context"`
	Summary    string      `json:"summary,omitempty"`
}
