package orchestrator

import (
	"testing"

	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionOrder(t *testing.T) {
	s := NewScheduler()

	t.Run("respects dependencies", func(t *testing.T) {
		order := s.ExecutionOrder(diamondGraph())
		require.Len(t, order, 4)

		pos := make(map[string]int, len(order))
		for i, id := range order {
			pos[id] = i
		}
		assert.Less(t, pos["a"], pos["b"])
		assert.Less(t, pos["a"], pos["c"])
		assert.Less(t, pos["b"], pos["d"])
		assert.Less(t, pos["c"], pos["d"])
	})

	t.Run("priority orders simultaneously ready tasks", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a", Priority: 0},
				{ID: "b", Priority: 5},
				{ID: "c", Priority: 1},
			},
			nil,
		)

		assert.Equal(t, []string{"b", "c", "a"}, s.ExecutionOrder(g))
	})

	t.Run("priority ties break by id", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "z"}, {ID: "a"}, {ID: "m"}},
			nil,
		)

		assert.Equal(t, []string{"a", "m", "z"}, s.ExecutionOrder(g))
	})

	t.Run("edges constrain the order too", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a"}, {ID: "b"}},
			[]domain.DependencyEdge{{From: "b", To: "a"}},
		)

		assert.Equal(t, []string{"b", "a"}, s.ExecutionOrder(g))
	})

	t.Run("cyclic graph yields partial order", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"c"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
			nil,
		)

		assert.Equal(t, []string{"a"}, s.ExecutionOrder(g))
	})

	t.Run("empty graph", func(t *testing.T) {
		assert.Empty(t, s.ExecutionOrder(domain.NewTaskGraph(nil, nil)))
		assert.Empty(t, s.ExecutionOrder(nil))
	})
}

func TestReadyTasks(t *testing.T) {
	s := NewScheduler()
	g := diamondGraph()

	t.Run("initially only roots are ready", func(t *testing.T) {
		statuses := map[string]domain.TaskStatus{
			"a": domain.TaskStatusPending,
			"b": domain.TaskStatusPending,
			"c": domain.TaskStatusPending,
			"d": domain.TaskStatusPending,
		}

		assert.Equal(t, []string{"a"}, s.ReadyTasks(g, statuses))
	})

	t.Run("completion unlocks dependents", func(t *testing.T) {
		statuses := map[string]domain.TaskStatus{
			"a": domain.TaskStatusCompleted,
			"b": domain.TaskStatusPending,
			"c": domain.TaskStatusPending,
			"d": domain.TaskStatusPending,
		}

		assert.Equal(t, []string{"b", "c"}, s.ReadyTasks(g, statuses))
	})

	t.Run("failed dependency is not completed", func(t *testing.T) {
		statuses := map[string]domain.TaskStatus{
			"a": domain.TaskStatusCompleted,
			"b": domain.TaskStatusFailed,
			"c": domain.TaskStatusCompleted,
			"d": domain.TaskStatusPending,
		}

		assert.Empty(t, s.ReadyTasks(g, statuses))
	})

	t.Run("running tasks are not ready again", func(t *testing.T) {
		statuses := map[string]domain.TaskStatus{
			"a": domain.TaskStatusRunning,
			"b": domain.TaskStatusPending,
			"c": domain.TaskStatusPending,
			"d": domain.TaskStatusPending,
		}

		assert.Empty(t, s.ReadyTasks(g, statuses))
	})

	t.Run("ready set sorted by priority then id", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "low", Priority: 1},
				{ID: "high", Priority: 9},
				{ID: "also-high", Priority: 9},
			},
			nil,
		)
		statuses := map[string]domain.TaskStatus{
			"low":       domain.TaskStatusPending,
			"high":      domain.TaskStatusPending,
			"also-high": domain.TaskStatusPending,
		}

		assert.Equal(t, []string{"also-high", "high", "low"}, s.ReadyTasks(g, statuses))
	})
}
