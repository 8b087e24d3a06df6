// Package storage groups the RunStore adapters: an in-memory store used for
// tests and single-process deployments, and a Redis-backed store for
// deployments where run state must survive the process or be inspected
// externally.
package storage
