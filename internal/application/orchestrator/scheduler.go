package orchestrator

import (
	"sort"

	"github.com/aescanero/taskdag/pkg/domain"
)

// Scheduler computes dependency-respecting execution orders and the live
// ready set. It is stateless; callers supply the graph and status map and
// are responsible for synchronization.
type Scheduler struct{}

// NewScheduler creates a new Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// ExecutionOrder returns a topological order of the graph using Kahn's
// algorithm. Among simultaneously-ready nodes, higher Priority runs first;
// the ready queue is re-sorted every time a node becomes ready. Ties on
// priority break by ascending task ID for determinism.
//
// The caller must have validated the graph: on a cyclic graph the returned
// order is partial.
func (s *Scheduler) ExecutionOrder(g *domain.TaskGraph) []string {
	if g == nil || len(g.Nodes) == 0 {
		return nil
	}

	priority := make(map[string]int, len(g.Nodes))
	inDegree := make(map[string]int, len(g.Nodes))
	dependents := make(map[string][]string, len(g.Nodes))

	for _, node := range g.Nodes {
		priority[node.ID] = node.Priority
		deps := g.Dependencies(node.ID)
		inDegree[node.ID] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], node.ID)
		}
	}

	var ready []string
	for _, node := range g.Nodes {
		if inDegree[node.ID] == 0 {
			ready = append(ready, node.ID)
		}
	}
	sortByPriority(ready, priority)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				sortByPriority(ready, priority)
			}
		}
	}

	return order
}

// ReadyTasks returns the IDs of pending tasks whose every dependency has
// status completed, or which have no dependencies at all. The result is
// sorted by descending priority, then ascending ID.
func (s *Scheduler) ReadyTasks(g *domain.TaskGraph, statuses map[string]domain.TaskStatus) []string {
	if g == nil {
		return nil
	}

	priority := make(map[string]int, len(g.Nodes))
	var ready []string

	for _, node := range g.Nodes {
		if statuses[node.ID] != domain.TaskStatusPending {
			continue
		}

		satisfied := true
		for _, dep := range g.Dependencies(node.ID) {
			if statuses[dep] != domain.TaskStatusCompleted {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}

		priority[node.ID] = node.Priority
		ready = append(ready, node.ID)
	}

	sortByPriority(ready, priority)
	return ready
}

// sortByPriority orders ids by descending priority, ascending id on ties.
func sortByPriority(ids []string, priority map[string]int) {
	sort.SliceStable(ids, func(i, j int) bool {
		if priority[ids[i]] != priority[ids[j]] {
			return priority[ids[i]] > priority[ids[j]]
		}
		return ids[i] < ids[j]
	})
}
