package domain

import "time"

// TaskNode is a single command-line task in the graph.
type TaskNode struct {
	// ID uniquely identifies the task within the graph.
	ID string `json:"id"`

	// Command is the shell-interpretable command line to run.
	Command string `json:"command"`

	// DependsOn lists the IDs of tasks that must complete before this one
	// may start. Order is preserved as declared.
	DependsOn []string `json:"depends_on,omitempty"`

	// Priority breaks ties among simultaneously-ready tasks. Higher runs
	// first.
	Priority int `json:"priority,omitempty"`

	// Timeout overrides the configured default task timeout when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`

	// WorkingDir overrides the process working directory when non-empty.
	WorkingDir string `json:"working_dir,omitempty"`

	// Env is an environment overlay merged onto the host environment.
	Env map[string]string `json:"env,omitempty"`
}

// DependencyEdge declares that From must complete before To may start.
type DependencyEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TaskGraph aggregates task nodes and dependency edges.
//
// Invariants (enforced by the validator, not the constructor): every edge
// endpoint references an existing node, no self-loops, acyclic.
type TaskGraph struct {
	Nodes []TaskNode       `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`
}

// NewTaskGraph builds a graph from nodes and edges without validating it.
// Validation is a separate, explicit step.
func NewTaskGraph(nodes []TaskNode, edges []DependencyEdge) *TaskGraph {
	return &TaskGraph{Nodes: nodes, Edges: edges}
}

// Node returns the node with the given ID.
func (g *TaskGraph) Node(id string) (*TaskNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// Dependencies returns the IDs the given task depends on: the node's
// DependsOn list first, then edge sources pointing at the task, deduplicated.
func (g *TaskGraph) Dependencies(id string) []string {
	seen := make(map[string]struct{})
	var deps []string

	if node, ok := g.Node(id); ok {
		for _, dep := range node.DependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			deps = append(deps, dep)
		}
	}

	for _, edge := range g.Edges {
		if edge.To != id {
			continue
		}
		if _, dup := seen[edge.From]; dup {
			continue
		}
		seen[edge.From] = struct{}{}
		deps = append(deps, edge.From)
	}

	return deps
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *TaskGraph) Dependents(id string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, edge := range g.Edges {
		if edge.From != id {
			continue
		}
		if _, dup := seen[edge.To]; dup {
			continue
		}
		seen[edge.To] = struct{}{}
		out = append(out, edge.To)
	}

	for i := range g.Nodes {
		for _, dep := range g.Nodes[i].DependsOn {
			if dep != id {
				continue
			}
			if _, dup := seen[g.Nodes[i].ID]; dup {
				continue
			}
			seen[g.Nodes[i].ID] = struct{}{}
			out = append(out, g.Nodes[i].ID)
		}
	}

	return out
}

// Clone returns a deep structural copy of the graph. Nil slices stay nil so
// a clone compares deep-equal to its source.
func (g *TaskGraph) Clone() *TaskGraph {
	cp := &TaskGraph{}
	if g.Nodes != nil {
		cp.Nodes = make([]TaskNode, len(g.Nodes))
	}
	if g.Edges != nil {
		cp.Edges = make([]DependencyEdge, len(g.Edges))
		copy(cp.Edges, g.Edges)
	}

	for i, n := range g.Nodes {
		nc := n
		if n.DependsOn != nil {
			nc.DependsOn = make([]string, len(n.DependsOn))
			copy(nc.DependsOn, n.DependsOn)
		}
		if n.Env != nil {
			nc.Env = make(map[string]string, len(n.Env))
			for k, v := range n.Env {
				nc.Env[k] = v
			}
		}
		cp.Nodes[i] = nc
	}

	return cp
}
