package isolation

import (
	"fmt"

	"github.com/aescanero/taskdag/pkg/domain"
	"go.uber.org/zap"
)

const defaultCharsPerToken = 4

// Builder assembles per-task context snapshots summarizing the outcomes of
// completed dependencies under a token budget.
type Builder struct {
	maxTokens     int
	charsPerToken int
	logger        *zap.Logger
}

// NewBuilder creates a snapshot builder with the given token budget and
// chars-per-token estimation ratio.
func NewBuilder(maxTokens, charsPerToken int, logger *zap.Logger) *Builder {
	if charsPerToken <= 0 {
		charsPerToken = defaultCharsPerToken
	}
	return &Builder{
		maxTokens:     maxTokens,
		charsPerToken: charsPerToken,
		logger:        logger,
	}
}

// Snapshot builds the context snapshot for a task: the effective
// configuration in force plus a summary of every dependency with a recorded
// successful result.
//
// Truncation is advisory: when the token estimate exceeds the budget the
// Truncated flag is set and Summary describes the overflow, but no entries
// are removed from the payload.
func (b *Builder) Snapshot(taskID string, config map[string]string, deps []string, results map[string]*domain.ExecutionResult) *domain.ContextSnapshot {
	data := domain.ContextData{
		Config:       config,
		Dependencies: make([]domain.DependencySummary, 0, len(deps)),
	}

	for _, dep := range deps {
		result, ok := results[dep]
		if !ok || !result.Success {
			continue
		}
		data.Dependencies = append(data.Dependencies, domain.DependencySummary{
			TaskID:        dep,
			ExitCode:      result.ExitCode,
			Duration:      result.Duration,
			FilesModified: result.FilesModified,
		})
	}

	baseTokens := b.estimate(data)

	snapshot := &domain.ContextSnapshot{
		TaskID:     taskID,
		BaseTokens: baseTokens,
		MaxTokens:  b.maxTokens,
		Context:    data,
	}

	if baseTokens > b.maxTokens {
		snapshot.Truncated = true
		snapshot.Summary = fmt.Sprintf(
			"context for task %s estimated at %d tokens, exceeding the budget of %d; %d dependency summaries included",
			taskID, baseTokens, b.maxTokens, len(data.Dependencies))
		b.logger.Warn("context snapshot over token budget",
			zap.String("task_id", taskID),
			zap.Int("base_tokens", baseTokens),
			zap.Int("max_tokens", b.maxTokens))
	}

	return snapshot
}

// estimate computes a character-based token estimate for the payload.
// Non-empty payloads estimate to at least one token.
func (b *Builder) estimate(data domain.ContextData) int {
	var totalChars int

	for k, v := range data.Config {
		totalChars += len(k) + len(v)
	}

	for _, dep := range data.Dependencies {
		totalChars += len(dep.TaskID)
		totalChars += len(fmt.Sprintf("%d", dep.ExitCode))
		totalChars += len(dep.Duration.String())
		for _, f := range dep.FilesModified {
			totalChars += len(f)
		}
	}

	tokens := totalChars / b.charsPerToken
	if totalChars > 0 && tokens == 0 {
		tokens = 1
	}
	return tokens
}

// EstimateText exposes the character-based token heuristic for arbitrary
// text, used by callers sizing additional payloads against the same budget.
func (b *Builder) EstimateText(text string) int {
	tokens := len(text) / b.charsPerToken
	if len(text) > 0 && tokens == 0 {
		tokens = 1
	}
	return tokens
}

// Budget returns the configured token budget.
func (b *Builder) Budget() int { return b.maxTokens }
