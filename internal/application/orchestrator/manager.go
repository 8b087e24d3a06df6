package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/taskdag/internal/application/executor"
	"github.com/aescanero/taskdag/internal/application/isolation"
	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/aescanero/taskdag/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds orchestrator manager configuration.
type Config struct {
	// GraphTimeout bounds a whole graph execution.
	GraphTimeout time.Duration

	// EventLogCap bounds the in-memory event log; most-recent entries are
	// preserved when the cap is exceeded.
	EventLogCap int

	// EffectiveConfig is the configuration summary included in context
	// snapshots.
	EffectiveConfig map[string]string
}

// Manager owns graph state, task status, results and the event log, and
// composes validator, scheduler, executor and context isolation into the
// loadGraph → validate → execute/executeParallel → query/reset lifecycle.
//
// All derived state is mutated only under the manager's mutex, in response
// to scheduler/executor callbacks.
type Manager struct {
	cfg       Config
	validator *Validator
	scheduler *Scheduler
	executor  *executor.Executor
	builder   *isolation.Builder
	eventBus  ports.EventBus
	store     ports.RunStore
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	mu         sync.RWMutex
	runID      string
	graph      *domain.TaskGraph
	validation domain.ValidationResult
	statuses   map[string]domain.TaskStatus
	results    map[string]*domain.ExecutionResult
	snapshots  map[string]*domain.ContextSnapshot
	events     []domain.TaskEvent
}

// NewManager creates a new orchestrator manager and registers itself as an
// executor event listener so every transition lands in the event log.
func NewManager(
	cfg Config,
	validator *Validator,
	scheduler *Scheduler,
	exec *executor.Executor,
	builder *isolation.Builder,
	eventBus ports.EventBus,
	store ports.RunStore,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Manager {
	if cfg.EventLogCap <= 0 {
		cfg.EventLogCap = 1000
	}

	m := &Manager{
		cfg:       cfg,
		validator: validator,
		scheduler: scheduler,
		executor:  exec,
		builder:   builder,
		eventBus:  eventBus,
		store:     store,
		metrics:   metrics,
		logger:    logger,
		statuses:  make(map[string]domain.TaskStatus),
		results:   make(map[string]*domain.ExecutionResult),
		snapshots: make(map[string]*domain.ContextSnapshot),
	}

	exec.OnEvent(m.handleEvent)

	return m
}

// LoadGraph replaces the active graph, resets all derived state, initializes
// every node to pending and returns the validator's result. An invalid graph
// is still loaded; execution entry points refuse to run it.
func (m *Manager) LoadGraph(ctx context.Context, g *domain.TaskGraph) domain.ValidationResult {
	result := m.validator.Validate(g)

	m.mu.Lock()
	m.runID = uuid.New().String()
	m.graph = g.Clone()
	m.validation = result
	m.statuses = make(map[string]domain.TaskStatus, len(g.Nodes))
	m.results = make(map[string]*domain.ExecutionResult)
	m.snapshots = make(map[string]*domain.ContextSnapshot)
	m.events = nil
	for _, node := range g.Nodes {
		m.statuses[node.ID] = domain.TaskStatusPending
	}
	runID := m.runID
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordGraphLoaded(result.Valid)
	}
	m.logger.Info("graph loaded",
		zap.String("run_id", runID),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Bool("valid", result.Valid),
		zap.Strings("errors", result.Errors),
		zap.Strings("warnings", result.Warnings))

	m.persist(ctx)

	return result
}

// Execute is the simplified sequential driver. It refuses to run when
// validation reported errors, walks the topological execution order and, for
// each task, skips execution with a synthetic failed result when any direct
// dependency's recorded result has failed. The cascade is level by level: a
// grandchild of a failed task is skipped because its direct parent's
// recorded result is itself failed.
func (m *Manager) Execute(ctx context.Context) (map[string]*domain.ExecutionResult, error) {
	g, err := m.executableGraph()
	if err != nil {
		return nil, err
	}

	if m.cfg.GraphTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.GraphTimeout)
		defer cancel()
	}

	start := time.Now()
	order := m.scheduler.ExecutionOrder(g)

	for _, id := range order {
		node, ok := g.Node(id)
		if !ok {
			continue
		}

		if failedDep := m.firstFailedDependency(g, id); failedDep != "" {
			result := &domain.ExecutionResult{
				TaskID:   id,
				Success:  false,
				ExitCode: -1,
				Error:    fmt.Sprintf("skipped due to failed dependency: %s", failedDep),
			}
			m.recordResult(id, domain.TaskStatusFailed, result)
			m.executor.Broadcast(domain.TaskEvent{
				TaskID:    id,
				Status:    domain.TaskStatusFailed,
				Timestamp: time.Now(),
				Error:     result.Error,
			})
			continue
		}

		m.setStatus(id, domain.TaskStatusRunning)
		depResults := m.dependencyResults(g, id)
		m.storeSnapshot(id, g, depResults)

		result := m.executor.Execute(ctx, node, depResults)

		status := domain.TaskStatusCompleted
		if !result.Success {
			status = domain.TaskStatusFailed
		}
		m.recordResult(id, status, result)
		m.persist(ctx)
	}

	if m.metrics != nil {
		m.metrics.RecordGraphExecuted(m.runStatus(), time.Since(start))
	}

	return m.GetAllResults(), nil
}

// ExecuteParallel drives bounded-concurrency execution of the active graph.
// Validation errors refuse synchronously, like Execute.
func (m *Manager) ExecuteParallel(ctx context.Context, onProgress executor.ProgressFunc) (map[string]*domain.ExecutionResult, error) {
	g, err := m.executableGraph()
	if err != nil {
		return nil, err
	}

	if m.cfg.GraphTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.GraphTimeout)
		defer cancel()
	}

	start := time.Now()

	progress := func(taskID string, status domain.TaskStatus, result *domain.ExecutionResult) {
		if status == domain.TaskStatusRunning {
			m.setStatus(taskID, domain.TaskStatusRunning)
			m.storeSnapshot(taskID, g, m.dependencyResults(g, taskID))
		} else if result != nil {
			m.recordResult(taskID, status, result)
			m.persist(ctx)
		}
		if onProgress != nil {
			onProgress(taskID, status, result)
		}
	}

	_, execErr := m.executor.ExecuteParallel(ctx, g, progress)

	if m.metrics != nil {
		m.metrics.RecordGraphExecuted(m.runStatus(), time.Since(start))
	}

	return m.GetAllResults(), execErr
}

// CreateContextSnapshot assembles (and retains) the context snapshot for a
// task from the dependency results recorded so far.
func (m *Manager) CreateContextSnapshot(taskID string) (*domain.ContextSnapshot, error) {
	m.mu.RLock()
	g := m.graph
	m.mu.RUnlock()

	if g == nil {
		return nil, domain.ErrNoGraph
	}
	if _, ok := g.Node(taskID); !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, domain.ErrTaskNotFound)
	}

	return m.storeSnapshot(taskID, g, m.dependencyResults(g, taskID)), nil
}

// Cancel cancels a single running task.
func (m *Manager) Cancel(taskID string) error {
	return m.executor.Cancel(taskID)
}

// CancelAll cancels every running task and returns how many were signalled.
func (m *Manager) CancelAll() int {
	return m.executor.CancelAll()
}

// OnEvent registers an observer for task state transitions.
func (m *Manager) OnEvent(listener executor.Listener) int {
	return m.executor.OnEvent(listener)
}

// OffEvent removes a previously registered observer.
func (m *Manager) OffEvent(id int) {
	m.executor.OffEvent(id)
}

// GetTaskStatus returns the status of a single task.
func (m *Manager) GetTaskStatus(taskID string) (domain.TaskStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.statuses[taskID]
	if !ok {
		return "", fmt.Errorf("task %s: %w", taskID, domain.ErrTaskNotFound)
	}
	return status, nil
}

// GetAllStatuses returns a copy of the status map.
func (m *Manager) GetAllStatuses() map[string]domain.TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.TaskStatus, len(m.statuses))
	for id, status := range m.statuses {
		out[id] = status
	}
	return out
}

// GetResult returns the recorded result for a task.
func (m *Manager) GetResult(taskID string) (*domain.ExecutionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, ok := m.results[taskID]
	if !ok {
		return nil, fmt.Errorf("no result for task %s: %w", taskID, domain.ErrTaskNotFound)
	}
	return result, nil
}

// GetAllResults returns a copy of the result map.
func (m *Manager) GetAllResults() map[string]*domain.ExecutionResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*domain.ExecutionResult, len(m.results))
	for id, result := range m.results {
		out[id] = result
	}
	return out
}

// GetEvents returns a copy of the event log, oldest first.
func (m *Manager) GetEvents() []domain.TaskEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TaskEvent, len(m.events))
	copy(out, m.events)
	return out
}

// GetSnapshot returns the retained context snapshot for a task, if any.
func (m *Manager) GetSnapshot(taskID string) (*domain.ContextSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[taskID]
	return snapshot, ok
}

// GetGraph returns a structural copy of the active graph, never a live
// reference.
func (m *Manager) GetGraph() (*domain.TaskGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.graph == nil {
		return nil, domain.ErrNoGraph
	}
	return m.graph.Clone(), nil
}

// GetValidation returns the validation result of the active graph.
func (m *Manager) GetValidation() domain.ValidationResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validation
}

// RunID returns the identifier of the current run.
func (m *Manager) RunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runID
}

// Reset cancels running tasks and discards all derived state; every node of
// the kept graph returns to pending.
func (m *Manager) Reset(ctx context.Context) {
	m.executor.CancelAll()

	m.mu.Lock()
	m.results = make(map[string]*domain.ExecutionResult)
	m.snapshots = make(map[string]*domain.ContextSnapshot)
	m.events = nil
	m.statuses = make(map[string]domain.TaskStatus)
	if m.graph != nil {
		for _, node := range m.graph.Nodes {
			m.statuses[node.ID] = domain.TaskStatusPending
		}
	}
	m.mu.Unlock()

	m.logger.Info("orchestrator state reset", zap.String("run_id", m.RunID()))
	m.persist(ctx)
}

// Cleanup is equivalent to Reset.
func (m *Manager) Cleanup(ctx context.Context) {
	m.Reset(ctx)
}

// handleEvent is the manager's own executor listener: it appends every
// transition to the bounded event log, publishes it on the event bus and
// records cancellations in the status map.
func (m *Manager) handleEvent(event domain.TaskEvent) {
	m.mu.Lock()
	m.events = append(m.events, event)
	if len(m.events) > m.cfg.EventLogCap {
		// Keep most-recent entries.
		m.events = m.events[len(m.events)-m.cfg.EventLogCap:]
	}
	if event.Status == domain.TaskStatusCancelled {
		if current, ok := m.statuses[event.TaskID]; ok && !current.IsTerminal() {
			m.statuses[event.TaskID] = domain.TaskStatusCancelled
		}
	}
	runID := m.runID
	m.mu.Unlock()

	if m.eventBus == nil {
		return
	}

	busEvent := ports.Event{
		ID:        uuid.New().String(),
		RunID:     runID,
		TaskID:    event.TaskID,
		Status:    event.Status,
		Timestamp: event.Timestamp,
		Duration:  event.Duration,
		Error:     event.Error,
		Message:   event.Message,
	}
	if err := m.eventBus.Publish(context.Background(), "task.events", busEvent); err != nil {
		m.logger.Error("failed to publish task event",
			zap.String("task_id", event.TaskID),
			zap.Error(err))
	}
}

// executableGraph returns the active graph or the error that forbids
// execution: no graph, or error-level validation findings.
func (m *Manager) executableGraph() (*domain.TaskGraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.graph == nil {
		return nil, domain.ErrNoGraph
	}
	if !m.validation.Valid {
		return nil, domain.NewValidationError(m.validation)
	}
	return m.graph, nil
}

// firstFailedDependency returns the first direct dependency of the task
// whose recorded result has failed, or "".
func (m *Manager) firstFailedDependency(g *domain.TaskGraph, id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, dep := range g.Dependencies(id) {
		if result, ok := m.results[dep]; ok && !result.Success {
			return dep
		}
	}
	return ""
}

// dependencyResults gathers recorded results for the task's direct
// dependencies.
func (m *Manager) dependencyResults(g *domain.TaskGraph, id string) map[string]*domain.ExecutionResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deps := g.Dependencies(id)
	out := make(map[string]*domain.ExecutionResult, len(deps))
	for _, dep := range deps {
		if result, ok := m.results[dep]; ok {
			out[dep] = result
		}
	}
	return out
}

// storeSnapshot builds and retains the context snapshot for a task.
func (m *Manager) storeSnapshot(id string, g *domain.TaskGraph, depResults map[string]*domain.ExecutionResult) *domain.ContextSnapshot {
	snapshot := m.builder.Snapshot(id, m.cfg.EffectiveConfig, g.Dependencies(id), depResults)

	m.mu.Lock()
	m.snapshots[id] = snapshot
	m.mu.Unlock()

	return snapshot
}

// setStatus applies a monotonic status transition; terminal states are never
// overwritten.
func (m *Manager) setStatus(id string, status domain.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.statuses[id]; ok && current.IsTerminal() {
		return
	}
	m.statuses[id] = status
}

// recordResult stores a result and its terminal status. Results are
// immutable once recorded.
func (m *Manager) recordResult(id string, status domain.TaskStatus, result *domain.ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.results[id]; exists {
		return
	}
	m.results[id] = result
	if current, ok := m.statuses[id]; !ok || !current.IsTerminal() {
		m.statuses[id] = status
	}
}

// runStatus summarizes the run for metrics: failed when any recorded result
// failed, completed otherwise.
func (m *Manager) runStatus() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, result := range m.results {
		if !result.Success {
			return "failed"
		}
	}
	return "completed"
}

// persist writes the current run state through to the configured store.
func (m *Manager) persist(ctx context.Context) {
	if m.store == nil {
		return
	}

	m.mu.RLock()
	state := &ports.RunState{
		RunID:     m.runID,
		Graph:     m.graph,
		Statuses:  make(map[string]domain.TaskStatus, len(m.statuses)),
		Results:   make(map[string]*domain.ExecutionResult, len(m.results)),
		UpdatedAt: time.Now(),
	}
	for id, status := range m.statuses {
		state.Statuses[id] = status
	}
	for id, result := range m.results {
		state.Results[id] = result
	}
	m.mu.RUnlock()

	if state.RunID == "" {
		return
	}

	if err := m.store.Save(ctx, state); err != nil {
		m.logger.Error("failed to persist run state",
			zap.String("run_id", state.RunID),
			zap.Error(err))
	}
}
