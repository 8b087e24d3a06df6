package orchestrator

import (
	"fmt"
	"testing"

	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewValidator()

	t.Run("valid graph", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a", Command: "true"},
				{ID: "b", Command: "true", DependsOn: []string{"a"}},
			},
			nil,
		)

		result := v.Validate(g)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("empty graph warns but stays valid", func(t *testing.T) {
		result := v.Validate(domain.NewTaskGraph(nil, nil))
		assert.True(t, result.Valid)
		assert.Contains(t, result.Warnings, "graph is empty")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a"}, {ID: "a"}},
			nil,
		)

		result := v.Validate(g)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "duplicate node id: a")
	})

	t.Run("dangling edge endpoints", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a"}},
			[]domain.DependencyEdge{{From: "ghost", To: "a"}, {From: "a", To: "phantom"}},
		)

		result := v.Validate(g)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "edge references non-existent source node: ghost")
		assert.Contains(t, result.Errors, "edge references non-existent target node: phantom")
	})

	t.Run("self loop", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a"}},
			[]domain.DependencyEdge{{From: "a", To: "a"}},
		)

		result := v.Validate(g)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "self-referencing edge: a -> a")
	})

	t.Run("missing depends_on target", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a", DependsOn: []string{"nowhere"}}},
			nil,
		)

		result := v.Validate(g)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors, "task a depends on non-existent task: nowhere")
	})

	t.Run("errors accumulate", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a"}, {ID: "a"}, {ID: "b", DependsOn: []string{"nowhere"}}},
			[]domain.DependencyEdge{{From: "ghost", To: "b"}},
		)

		result := v.Validate(g)
		assert.False(t, result.Valid)
		assert.Len(t, result.Errors, 3)
	})
}

func TestValidateCycles(t *testing.T) {
	v := NewValidator()

	t.Run("two node cycle path closes on repeated node", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
			nil,
		)

		result := v.Validate(g)
		require.False(t, result.Valid)

		var cycleErr string
		for _, e := range result.Errors {
			if len(e) > len("cycle detected: ") && e[:len("cycle detected: ")] == "cycle detected: " {
				cycleErr = e
			}
		}
		require.NotEmpty(t, cycleErr, "expected a cycle error, got %v", result.Errors)
		// The reported path starts and ends at the repeated node.
		assert.Contains(t, []string{
			"cycle detected: a -> b -> a",
			"cycle detected: b -> a -> b",
		}, cycleErr)
	})

	t.Run("only first cycle reported", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"d"}},
				{ID: "d", DependsOn: []string{"c"}},
			},
			nil,
		)

		result := v.Validate(g)
		require.False(t, result.Valid)

		cycles := 0
		for _, e := range result.Errors {
			if len(e) > len("cycle detected") && e[:len("cycle detected")] == "cycle detected" {
				cycles++
			}
		}
		assert.Equal(t, 1, cycles)
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		g := diamondGraph()
		result := v.Validate(g)
		assert.True(t, result.Valid)
	})
}

func TestValidateIsolatedNodes(t *testing.T) {
	v := NewValidator()

	t.Run("isolated node warns in multi-node graph", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "island"},
			},
			nil,
		)

		result := v.Validate(g)
		assert.True(t, result.Valid)
		assert.Contains(t, result.Warnings, "unreachable node: island")
	})

	t.Run("single node graph never warns", func(t *testing.T) {
		g := domain.NewTaskGraph([]domain.TaskNode{{ID: "only"}}, nil)
		result := v.Validate(g)
		assert.Empty(t, result.Warnings)
	})

	t.Run("depends_on connectivity counts", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
			},
			nil,
		)

		result := v.Validate(g)
		assert.Empty(t, result.Warnings)
	})
}

// diamondGraph builds a -> {b, c} -> d.
func diamondGraph() *domain.TaskGraph {
	return domain.NewTaskGraph(
		[]domain.TaskNode{
			{ID: "a", Command: "true"},
			{ID: "b", Command: "true", DependsOn: []string{"a"}},
			{ID: "c", Command: "true", DependsOn: []string{"a"}},
			{ID: "d", Command: "true", DependsOn: []string{"b", "c"}},
		},
		nil,
	)
}

func chainGraph(n int) *domain.TaskGraph {
	nodes := make([]domain.TaskNode, n)
	for i := 0; i < n; i++ {
		nodes[i] = domain.TaskNode{ID: fmt.Sprintf("t%d", i), Command: "true"}
		if i > 0 {
			nodes[i].DependsOn = []string{fmt.Sprintf("t%d", i-1)}
		}
	}
	return domain.NewTaskGraph(nodes, nil)
}
