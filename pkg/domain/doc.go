// Package domain defines the core data model for task graph orchestration:
// task nodes, dependency edges, the graph aggregate, execution results,
// context snapshots and the task event audit trail.
//
// Types in this package are plain data. All coordination logic lives in the
// application layer.
package domain
