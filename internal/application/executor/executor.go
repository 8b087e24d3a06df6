package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aescanero/taskdag/internal/application/workers"
	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/aescanero/taskdag/pkg/ports"
	"go.uber.org/zap"
)

// Config holds executor configuration.
type Config struct {
	// DefaultTimeout applies to tasks that declare no timeout of their own.
	DefaultTimeout time.Duration

	// FailFast stops launching new tasks after the first failure during
	// parallel execution. Tasks already in flight are allowed to finish.
	FailFast bool
}

// runningProcess tracks one launched task for cooperative cancellation.
type runningProcess struct {
	cmd       *exec.Cmd
	cancelled bool
}

// Executor launches tasks as external processes, enforces timeouts, captures
// output and drives bounded-concurrency execution of entire graphs.
//
// Commands run through the host shell (`sh -c`), preserving pipe and glob
// semantics. The caller supplying task commands is therefore trusted; this
// is a deliberate security boundary, not an oversight.
type Executor struct {
	cfg     Config
	pool    *workers.Pool
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu      sync.Mutex
	running map[string]*runningProcess

	listenerMu   sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

// New creates a new Executor backed by the given worker pool.
func New(cfg Config, pool *workers.Pool, metrics ports.MetricsCollector, logger *zap.Logger) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	return &Executor{
		cfg:       cfg,
		pool:      pool,
		metrics:   metrics,
		logger:    logger,
		running:   make(map[string]*runningProcess),
		listeners: make(map[int]Listener),
	}
}

// Execute launches the task's command as an external process and waits for
// it to exit or time out, whichever comes first.
//
// Task-level outcomes are never returned as errors: non-zero exits, launch
// failures, timeouts and cancellations all resolve to an ExecutionResult
// with Success=false. Timeouts use a synthetic exit code of -1 and a message
// naming the timeout duration.
func (e *Executor) Execute(ctx context.Context, task *domain.TaskNode, depResults map[string]*domain.ExecutionResult) *domain.ExecutionResult {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	cmd := exec.Command("sh", "-c", task.Command)
	if task.WorkingDir != "" {
		cmd.Dir = task.WorkingDir
	}
	cmd.Env = overlayEnv(os.Environ(), task.Env)

	// Own process group so a graceful-stop signal reaches the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()

	if err := cmd.Start(); err != nil {
		result := &domain.ExecutionResult{
			TaskID:   task.ID,
			Success:  false,
			ExitCode: -1,
			Duration: time.Since(start),
			Error:    fmt.Sprintf("failed to start command: %v", err),
		}
		e.logger.Error("task launch failed",
			zap.String("task_id", task.ID),
			zap.Error(err))
		e.notify(domain.TaskEvent{
			TaskID:    task.ID,
			Status:    domain.TaskStatusFailed,
			Timestamp: time.Now(),
			Error:     result.Error,
		})
		e.recordMetrics(result)
		return result
	}

	proc := &runningProcess{cmd: cmd}
	e.mu.Lock()
	e.running[task.ID] = proc
	runningCount := len(e.running)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetRunningTasks(runningCount)
	}

	e.logger.Info("task started",
		zap.String("task_id", task.ID),
		zap.Duration("timeout", timeout))
	e.notify(domain.TaskEvent{
		TaskID:    task.ID,
		Status:    domain.TaskStatusRunning,
		Timestamp: time.Now(),
	})

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false

	select {
	case waitErr = <-done:

	case <-timer.C:
		timedOut = true
		e.signalStop(cmd)
		waitErr = <-done

	case <-ctx.Done():
		e.signalStop(cmd)
		waitErr = <-done
	}

	duration := time.Since(start)

	e.mu.Lock()
	cancelled := proc.cancelled
	delete(e.running, task.ID)
	runningCount = len(e.running)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetRunningTasks(runningCount)
	}

	result := &domain.ExecutionResult{
		TaskID:   task.ID,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if task.WorkingDir != "" {
		result.FilesModified = scanModifiedFiles(task.WorkingDir, start)
	}

	switch {
	case timedOut:
		result.ExitCode = -1
		result.Error = fmt.Sprintf("task timed out after %s", timeout)

	case cancelled:
		result.ExitCode = -1
		result.Error = "task cancelled"

	case ctx.Err() != nil:
		result.ExitCode = -1
		result.Error = fmt.Sprintf("execution cancelled: %v", ctx.Err())

	default:
		exitCode := 0
		if waitErr != nil {
			if exitErr, ok := waitErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
				result.Error = fmt.Sprintf("command failed: %v", waitErr)
			}
		}
		result.ExitCode = exitCode
		result.Success = exitCode == 0
		if !result.Success && result.Error == "" {
			result.Error = fmt.Sprintf("command exited with code %d", exitCode)
		}
	}

	// Cancellation already emitted its event from Cancel.
	if !cancelled {
		status := domain.TaskStatusCompleted
		if !result.Success {
			status = domain.TaskStatusFailed
		}
		e.notify(domain.TaskEvent{
			TaskID:    task.ID,
			Status:    status,
			Timestamp: time.Now(),
			Duration:  duration,
			Error:     result.Error,
		})
	}

	e.logger.Info("task finished",
		zap.String("task_id", task.ID),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", duration))
	e.recordMetrics(result)

	return result
}

// Cancel sends a graceful-stop signal to the tracked process for taskID,
// removes it from the running-process registry and emits a cancelled event.
//
// There is no kill-after-grace escalation: a process that ignores the signal
// hangs until it exits on its own.
func (e *Executor) Cancel(taskID string) error {
	e.mu.Lock()
	proc, ok := e.running[taskID]
	if ok {
		proc.cancelled = true
		delete(e.running, taskID)
	}
	runningCount := len(e.running)
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %s is not running: %w", taskID, domain.ErrTaskNotFound)
	}

	e.signalStop(proc.cmd)
	if e.metrics != nil {
		e.metrics.SetRunningTasks(runningCount)
		e.metrics.RecordTaskCancelled()
	}

	e.logger.Info("task cancelled", zap.String("task_id", taskID))
	e.notify(domain.TaskEvent{
		TaskID:    taskID,
		Status:    domain.TaskStatusCancelled,
		Timestamp: time.Now(),
		Message:   "cancelled by request",
	})

	return nil
}

// CancelAll cancels every tracked running process and returns how many were
// signalled.
func (e *Executor) CancelAll() int {
	e.mu.Lock()
	procs := make(map[string]*runningProcess, len(e.running))
	for id, proc := range e.running {
		proc.cancelled = true
		procs[id] = proc
	}
	e.running = make(map[string]*runningProcess)
	e.mu.Unlock()

	for id, proc := range procs {
		e.signalStop(proc.cmd)
		if e.metrics != nil {
			e.metrics.RecordTaskCancelled()
		}
		e.logger.Info("task cancelled", zap.String("task_id", id))
		e.notify(domain.TaskEvent{
			TaskID:    id,
			Status:    domain.TaskStatusCancelled,
			Timestamp: time.Now(),
			Message:   "cancelled by request",
		})
	}

	if e.metrics != nil {
		e.metrics.SetRunningTasks(0)
	}

	return len(procs)
}

// RunningTasks returns the IDs of tasks currently in the running-process
// registry.
func (e *Executor) RunningTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

// signalStop sends SIGTERM to the process group.
func (e *Executor) signalStop(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		// Fall back to the single process if the group is gone.
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

func (e *Executor) recordMetrics(result *domain.ExecutionResult) {
	if e.metrics == nil {
		return
	}
	status := "completed"
	if !result.Success {
		status = "failed"
	}
	e.metrics.RecordTaskExecuted(status, result.Duration)
}

// overlayEnv merges the task environment overlay onto the host environment.
// Overlay entries win over host entries with the same key.
func overlayEnv(host []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return host
	}

	merged := make([]string, 0, len(host)+len(overlay))
	for _, kv := range host {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if _, shadowed := overlay[key]; shadowed {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range overlay {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}
