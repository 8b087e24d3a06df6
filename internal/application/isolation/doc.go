// Package isolation builds per-task context snapshots: token-budgeted
// summaries of completed-dependency outcomes handed to a task before it
// runs. Token estimation uses a character-count heuristic.
package isolation
