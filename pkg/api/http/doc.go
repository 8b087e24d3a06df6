// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Graph loading, validation and execution
//   - Status, result and event queries
//   - Task cancellation and state reset
//   - Health checks
//   - Prometheus metrics
package http
