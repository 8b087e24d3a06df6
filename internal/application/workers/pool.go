package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/aescanero/taskdag/pkg/ports"
	"go.uber.org/zap"
)

// Request is a unit of work submitted to the pool. Run performs the task
// and the outcome is delivered on Done.
type Request struct {
	TaskID string
	Run    func(ctx context.Context) *domain.ExecutionResult
	Done   chan<- Result
}

// Result pairs a task ID with its execution outcome.
type Result struct {
	TaskID string
	Result *domain.ExecutionResult
}

// Pool manages a fixed-size pool of worker goroutines that execute task
// launch requests. Its size bounds how many tasks can be in flight at once.
type Pool struct {
	size    int
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	requests chan Request
	workers  []*worker
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	startOnce sync.Once
}

// worker represents a single worker goroutine.
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool.
func NewPool(size int, metrics ports.MetricsCollector, logger *zap.Logger, healthCheckInterval time.Duration) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:     size,
		metrics:  metrics,
		logger:   logger,
		requests: make(chan Request),
		workers:  make([]*worker, size),
		ctx:      ctx,
		cancel:   cancel,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Size returns the pool size, which is also the concurrency bound.
func (p *Pool) Size() int { return p.size }

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", zap.Int("size", p.size))

		for i := 0; i < p.size; i++ {
			w := &worker{
				id:      fmt.Sprintf("worker-%d", i),
				pool:    p,
				status:  WorkerStatusIdle,
				lastJob: time.Now(),
			}
			p.workers[i] = w

			p.wg.Add(1)
			go w.run(p.ctx)
		}

		p.health.Start()

		p.logger.Info("worker pool started", zap.Int("workers", p.size))
	})
	return nil
}

// Submit hands a request to an idle worker. It blocks while all workers are
// busy, or returns the pool context error after shutdown.
func (p *Pool) Submit(ctx context.Context, req Request) error {
	select {
	case p.requests <- req:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool stopped: %w", p.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// GetStatus returns the status of all workers.
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// run is the main worker loop.
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Debug("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.status = WorkerStatusStopped
			w.mu.Unlock()
			w.pool.logger.Debug("worker stopped", zap.String("worker_id", w.id))
			return

		case req := <-w.pool.requests:
			w.handle(ctx, req)
		}
	}
}

// handle executes a single launch request and delivers the outcome.
func (w *worker) handle(ctx context.Context, req Request) {
	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.mu.Unlock()
	}()

	w.pool.logger.Debug("executing task",
		zap.String("worker_id", w.id),
		zap.String("task_id", req.TaskID))

	result := req.Run(ctx)

	select {
	case req.Done <- Result{TaskID: req.TaskID, Result: result}:
	case <-ctx.Done():
	}
}
