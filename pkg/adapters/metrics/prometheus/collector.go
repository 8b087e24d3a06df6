// Package prometheus implements the metrics collector port on Prometheus.
// All metrics are registered on the default registry and exposed through the
// HTTP server's /metrics endpoint.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	graphsLoaded   *prometheus.CounterVec
	graphsExecuted *prometheus.CounterVec
	graphDuration  prometheus.Histogram
	tasksExecuted  *prometheus.CounterVec
	tasksCancelled prometheus.Counter
	taskDuration   prometheus.Histogram
	runningTasks   prometheus.Gauge
	workerPoolIdle prometheus.Gauge
	workerPoolBusy prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		graphsLoaded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskdag_graphs_loaded_total",
				Help: "Total number of graphs loaded",
			},
			[]string{"valid"},
		),
		graphsExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskdag_graphs_executed_total",
				Help: "Total number of graph executions",
			},
			[]string{"status"},
		),
		graphDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskdag_graph_duration_seconds",
				Help:    "Graph execution duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		tasksExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskdag_tasks_executed_total",
				Help: "Total number of task executions",
			},
			[]string{"status"},
		),
		tasksCancelled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taskdag_tasks_cancelled_total",
				Help: "Total number of cancelled tasks",
			},
		),
		taskDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskdag_task_duration_seconds",
				Help:    "Task execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		runningTasks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskdag_running_tasks",
				Help: "Number of currently running tasks",
			},
		),
		workerPoolIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskdag_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskdag_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
	}
}

// RecordGraphLoaded records a graph load and its validation outcome.
func (c *Collector) RecordGraphLoaded(valid bool) {
	label := "true"
	if !valid {
		label = "false"
	}
	c.graphsLoaded.WithLabelValues(label).Inc()
}

// RecordGraphExecuted records a completed graph execution.
func (c *Collector) RecordGraphExecuted(status string, duration time.Duration) {
	c.graphsExecuted.WithLabelValues(status).Inc()
	c.graphDuration.Observe(duration.Seconds())
}

// RecordTaskExecuted records a completed task execution.
func (c *Collector) RecordTaskExecuted(status string, duration time.Duration) {
	c.tasksExecuted.WithLabelValues(status).Inc()
	c.taskDuration.Observe(duration.Seconds())
}

// RecordTaskCancelled records a task cancellation.
func (c *Collector) RecordTaskCancelled() {
	c.tasksCancelled.Inc()
}

// SetRunningTasks sets the number of currently running tasks.
func (c *Collector) SetRunningTasks(count int) {
	c.runningTasks.Set(float64(count))
}

// RecordWorkerPoolStatus records the worker pool idle/busy split.
func (c *Collector) RecordWorkerPoolStatus(idle, busy int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
}
