package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/taskdag/internal/application/workers"
	"github.com/aescanero/taskdag/pkg/domain"
	"go.uber.org/zap"
)

// ProgressFunc observes per-task progress during parallel execution. It is
// called with a nil result for the transition to running and with the
// recorded result for terminal transitions.
type ProgressFunc func(taskID string, status domain.TaskStatus, result *domain.ExecutionResult)

// ExecuteParallel drives bounded-concurrency execution of the whole graph.
//
// The loop re-evaluates readiness after every completion: a task launches
// only when all of its direct dependencies have completed successfully.
// Dependency failures cascade level by level as synthetic skipped results,
// so independent branches keep progressing. With FailFast set, no new tasks
// launch after the first failure; tasks already in flight finish, the
// failure's dependents still cascade to skipped, and unrelated pending tasks
// are left pending. Cancelling ctx stops in-flight tasks as well as launches.
//
// A genuine deadlock — nothing ready, nothing running, graph incomplete —
// terminates the loop with ErrDeadlock naming the stuck tasks. The recorded
// results so far are returned alongside the error.
func (e *Executor) ExecuteParallel(ctx context.Context, g *domain.TaskGraph, onProgress ProgressFunc) (map[string]*domain.ExecutionResult, error) {
	results := make(map[string]*domain.ExecutionResult, len(g.Nodes))
	if len(g.Nodes) == 0 {
		return results, nil
	}
	if onProgress == nil {
		onProgress = func(string, domain.TaskStatus, *domain.ExecutionResult) {}
	}

	statuses := make(map[string]domain.TaskStatus, len(g.Nodes))
	for _, node := range g.Nodes {
		statuses[node.ID] = domain.TaskStatusPending
	}

	doneCh := make(chan workers.Result, len(g.Nodes))
	running := 0
	stopLaunching := false

	terminalCount := func() int {
		n := 0
		for _, st := range statuses {
			if st.IsTerminal() {
				n++
			}
		}
		return n
	}

	for terminalCount() < len(g.Nodes) {
		// Cascade dependency failures before looking for ready work. Each
		// pass handles one level; the outer loop reaches fixpoint.
		e.propagateFailures(g, statuses, results, onProgress)

		if !stopLaunching {
			ready := readySet(g, statuses)
			slots := e.pool.Size() - running

			for i := 0; i < len(ready) && i < slots; i++ {
				id := ready[i]
				node, ok := g.Node(id)
				if !ok {
					continue
				}

				statuses[id] = domain.TaskStatusRunning
				onProgress(id, domain.TaskStatusRunning, nil)

				depResults := e.collectDependencyResults(g, id, results)
				task := *node
				req := workers.Request{
					TaskID: id,
					// The task honors the caller's deadline, matching
					// sequential execution; pool shutdown still cancels it
					// through the worker context.
					Run: func(runCtx context.Context) *domain.ExecutionResult {
						taskCtx, cancel := context.WithCancel(ctx)
						defer cancel()
						stop := context.AfterFunc(runCtx, cancel)
						defer stop()
						return e.Execute(taskCtx, &task, depResults)
					},
					Done: doneCh,
				}
				if err := e.pool.Submit(ctx, req); err != nil {
					statuses[id] = domain.TaskStatusFailed
					results[id] = &domain.ExecutionResult{
						TaskID:   id,
						Success:  false,
						ExitCode: -1,
						Error:    fmt.Sprintf("failed to submit task: %v", err),
					}
					onProgress(id, domain.TaskStatusFailed, results[id])
					continue
				}
				running++
			}
		}

		if running == 0 {
			if terminalCount() >= len(g.Nodes) {
				break
			}
			if stopLaunching {
				// Fail-fast stop: dependents of recorded failures still
				// cascade to skipped results, since they could never run
				// anyway; unrelated tasks stay pending.
				for e.propagateFailures(g, statuses, results, onProgress) {
				}
				e.logger.Warn("fail-fast stop",
					zap.Int("pending", len(g.Nodes)-terminalCount()))
				return results, nil
			}
			// A failure cascade may still be in flight; only report a
			// deadlock once a sweep makes no progress.
			if e.propagateFailures(g, statuses, results, onProgress) {
				continue
			}
			stuck := pendingTasks(statuses)
			e.logger.Error("execution deadlock", zap.Strings("stuck", stuck))
			return results, fmt.Errorf("%w: no task is ready and none is running; stuck tasks: %s",
				domain.ErrDeadlock, strings.Join(stuck, ", "))
		}

		// Block until at least one in-flight task finishes. No busy polling.
		res := <-doneCh
		running--

		results[res.TaskID] = res.Result
		status := domain.TaskStatusCompleted
		if !res.Result.Success {
			status = domain.TaskStatusFailed
		}
		statuses[res.TaskID] = status
		onProgress(res.TaskID, status, res.Result)

		if e.cfg.FailFast && !res.Result.Success {
			stopLaunching = true
		}
	}

	return results, nil
}

// propagateFailures records synthetic skipped results for pending tasks
// whose direct dependency has a recorded failed result. Returns true when it
// made progress.
func (e *Executor) propagateFailures(g *domain.TaskGraph, statuses map[string]domain.TaskStatus, results map[string]*domain.ExecutionResult, onProgress ProgressFunc) bool {
	progressed := false

	for _, node := range g.Nodes {
		if statuses[node.ID] != domain.TaskStatusPending {
			continue
		}

		for _, dep := range g.Dependencies(node.ID) {
			depResult, recorded := results[dep]
			if !recorded || depResult.Success {
				continue
			}

			result := &domain.ExecutionResult{
				TaskID:   node.ID,
				Success:  false,
				ExitCode: -1,
				Error:    fmt.Sprintf("skipped due to failed dependency: %s", dep),
			}
			statuses[node.ID] = domain.TaskStatusFailed
			results[node.ID] = result
			progressed = true

			e.logger.Info("task skipped",
				zap.String("task_id", node.ID),
				zap.String("failed_dependency", dep))
			e.notify(domain.TaskEvent{
				TaskID:    node.ID,
				Status:    domain.TaskStatusFailed,
				Timestamp: time.Now(),
				Error:     result.Error,
			})
			onProgress(node.ID, domain.TaskStatusFailed, result)
			break
		}
	}

	return progressed
}

// collectDependencyResults gathers the recorded results of the task's
// direct, already-completed dependencies.
func (e *Executor) collectDependencyResults(g *domain.TaskGraph, id string, results map[string]*domain.ExecutionResult) map[string]*domain.ExecutionResult {
	deps := g.Dependencies(id)
	out := make(map[string]*domain.ExecutionResult, len(deps))
	for _, dep := range deps {
		if result, ok := results[dep]; ok {
			out[dep] = result
		}
	}
	return out
}

// readySet returns pending tasks whose dependencies are all completed,
// highest priority first, ascending ID on ties. This readiness computation
// is deliberately independent of the sequential scheduler.
func readySet(g *domain.TaskGraph, statuses map[string]domain.TaskStatus) []string {
	var ready []string
	priority := make(map[string]int)

	for _, node := range g.Nodes {
		if statuses[node.ID] != domain.TaskStatusPending {
			continue
		}

		satisfied := true
		for _, dep := range g.Dependencies(node.ID) {
			if statuses[dep] != domain.TaskStatusCompleted {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}

		priority[node.ID] = node.Priority
		ready = append(ready, node.ID)
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if priority[ready[i]] != priority[ready[j]] {
			return priority[ready[i]] > priority[ready[j]]
		}
		return ready[i] < ready[j]
	})

	return ready
}

func pendingTasks(statuses map[string]domain.TaskStatus) []string {
	var pending []string
	for id, st := range statuses {
		if !st.IsTerminal() {
			pending = append(pending, id)
		}
	}
	sort.Strings(pending)
	return pending
}
