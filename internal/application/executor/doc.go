// Package executor launches tasks as external OS processes and drives
// bounded-concurrency execution of whole graphs.
//
// Commands run through the host shell (sh -c), so pipes and globs work as
// task authors expect; task definitions are therefore trusted input. A
// per-task wall-clock timeout is enforced by signalling the process group
// with SIGTERM. Cancellation is cooperative: there is no forced-kill
// escalation for processes that ignore the signal.
//
// Every state transition is broadcast to registered listeners; a
// misbehaving listener never aborts dispatch to other listeners or affects
// task execution.
package executor
