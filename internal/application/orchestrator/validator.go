package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aescanero/taskdag/pkg/domain"
)

// Validator performs structural checks on task graphs.
//
// Checks are independent: all of them run even when earlier ones fail, and
// errors accumulate in the result. Warnings never make a graph invalid.
type Validator struct{}

// NewValidator creates a new graph validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every structural check against the graph.
func (v *Validator) Validate(g *domain.TaskGraph) domain.ValidationResult {
	result := domain.ValidationResult{Valid: true}

	if g == nil || len(g.Nodes) == 0 {
		result.Warnings = append(result.Warnings, "graph is empty")
		return result
	}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for _, node := range g.Nodes {
		if nodeIDs[node.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate node id: %s", node.ID))
			continue
		}
		nodeIDs[node.ID] = true
	}

	for _, edge := range g.Edges {
		if !nodeIDs[edge.From] {
			result.Errors = append(result.Errors, fmt.Sprintf("edge references non-existent source node: %s", edge.From))
		}
		if !nodeIDs[edge.To] {
			result.Errors = append(result.Errors, fmt.Sprintf("edge references non-existent target node: %s", edge.To))
		}
		if edge.From == edge.To {
			result.Errors = append(result.Errors, fmt.Sprintf("self-referencing edge: %s -> %s", edge.From, edge.To))
		}
	}

	for _, node := range g.Nodes {
		for _, dep := range node.DependsOn {
			if !nodeIDs[dep] {
				result.Errors = append(result.Errors, fmt.Sprintf("task %s depends on non-existent task: %s", node.ID, dep))
			}
		}
	}

	if cycle := v.findCycle(g, nodeIDs); len(cycle) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
	}

	// "Unreachable" here deliberately means isolated: a node appearing in no
	// edge at all, not graph-theoretic unreachability from a root.
	if len(g.Nodes) > 1 {
		inEdge := make(map[string]bool)
		for _, edge := range g.Edges {
			inEdge[edge.From] = true
			inEdge[edge.To] = true
		}
		for _, node := range g.Nodes {
			if !inEdge[node.ID] && len(node.DependsOn) == 0 && len(g.Dependents(node.ID)) == 0 {
				result.Warnings = append(result.Warnings, fmt.Sprintf("unreachable node: %s", node.ID))
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// findCycle detects the first cycle via depth-first search with a recursion
// stack. The returned path starts and ends at the repeated node. Only the
// first cycle encountered is reported.
func (v *Validator) findCycle(g *domain.TaskGraph, nodeIDs map[string]bool) []string {
	adjacency := make(map[string][]string, len(g.Nodes))
	for _, node := range g.Nodes {
		for _, dep := range g.Dependencies(node.ID) {
			if nodeIDs[dep] {
				adjacency[dep] = append(adjacency[dep], node.ID)
			}
		}
	}
	for id := range adjacency {
		sort.Strings(adjacency[id])
	}

	visited := make(map[string]bool, len(g.Nodes))
	onStack := make(map[string]bool, len(g.Nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, next := range adjacency[id] {
			if onStack[next] {
				// Back edge: slice the path from the first occurrence of
				// the repeated node and close the loop.
				for i, p := range path {
					if p == next {
						cycle := make([]string, 0, len(path)-i+1)
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, next)
						return cycle
					}
				}
			}
			if !visited[next] {
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return nil
	}

	// Iterate nodes in declaration order for a stable report.
	for _, node := range g.Nodes {
		if visited[node.ID] {
			continue
		}
		if cycle := visit(node.ID); cycle != nil {
			return cycle
		}
	}

	return nil
}
