// Package workers implements the worker pool that bounds task concurrency.
//
// The worker pool manages a fixed number of goroutines that:
//   - Accept task launch requests from the executor
//   - Run the external process for each request
//   - Deliver outcomes on the request's reply channel
//
// The pool size is the concurrency bound for parallel graph execution.
// The health monitor tracks worker status and reports metrics.
package workers
