package domain

// ValidationResult accumulates the outcome of all structural graph checks.
// Warnings never make a graph invalid.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
