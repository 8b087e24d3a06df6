// Package orchestrator contains the graph validation, scheduling and run
// coordination logic.
//
// The Validator accumulates structural findings without aborting on the
// first problem. The Scheduler produces a priority-aware topological
// execution order and the set of immediately runnable tasks. The Manager
// owns all run state and composes validator, scheduler, executor and
// context isolation into the load → validate → execute → query lifecycle.
package orchestrator
