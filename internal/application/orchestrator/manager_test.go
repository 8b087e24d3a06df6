package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/taskdag/internal/application/executor"
	"github.com/aescanero/taskdag/internal/application/isolation"
	"github.com/aescanero/taskdag/internal/application/workers"
	memoryevents "github.com/aescanero/taskdag/pkg/adapters/events/memory"
	memorystorage "github.com/aescanero/taskdag/pkg/adapters/storage/memory"
	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type managerFixture struct {
	manager *Manager
	store   *memorystorage.RunStore
}

func newManagerFixture(t *testing.T, cfg Config) *managerFixture {
	t.Helper()

	logger := zap.NewNop()

	pool := workers.NewPool(4, nil, logger, time.Minute)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	exec := executor.New(executor.Config{DefaultTimeout: 30 * time.Second}, pool, nil, logger)
	store := memorystorage.NewRunStore()

	manager := NewManager(
		cfg,
		NewValidator(),
		NewScheduler(),
		exec,
		isolation.NewBuilder(4096, 4, logger),
		memoryevents.NewEventBus(logger),
		store,
		nil,
		logger,
	)

	return &managerFixture{manager: manager, store: store}
}

func TestLoadGraph(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	t.Run("loads and initializes pending", func(t *testing.T) {
		result := f.manager.LoadGraph(ctx, diamondGraph())
		require.True(t, result.Valid)

		statuses := f.manager.GetAllStatuses()
		require.Len(t, statuses, 4)
		for id, status := range statuses {
			assert.Equal(t, domain.TaskStatusPending, status, "task %s", id)
		}
		assert.NotEmpty(t, f.manager.RunID())
	})

	t.Run("returns a copy of the graph", func(t *testing.T) {
		original := diamondGraph()
		f.manager.LoadGraph(ctx, original)

		got, err := f.manager.GetGraph()
		require.NoError(t, err)
		assert.Equal(t, original, got)

		// Mutating the returned copy must not affect the loaded graph.
		got.Nodes[0].Command = "mutated"
		again, err := f.manager.GetGraph()
		require.NoError(t, err)
		assert.Equal(t, "true", again.Nodes[0].Command)
	})

	t.Run("invalid graph loads but reports errors", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{{ID: "a", DependsOn: []string{"a-missing"}}},
			nil,
		)

		result := f.manager.LoadGraph(ctx, g)
		assert.False(t, result.Valid)
		assert.Equal(t, result, f.manager.GetValidation())
	})

	t.Run("replacing the graph resets derived state", func(t *testing.T) {
		f.manager.LoadGraph(ctx, diamondGraph())
		_, err := f.manager.Execute(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, f.manager.GetAllResults())

		f.manager.LoadGraph(ctx, diamondGraph())
		assert.Empty(t, f.manager.GetAllResults())
		assert.Empty(t, f.manager.GetEvents())
	})
}

func TestExecuteRefusals(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	t.Run("no graph", func(t *testing.T) {
		_, err := f.manager.Execute(ctx)
		assert.ErrorIs(t, err, domain.ErrNoGraph)
	})

	t.Run("invalid graph", func(t *testing.T) {
		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
			nil,
		)
		result := f.manager.LoadGraph(ctx, g)
		require.False(t, result.Valid)

		_, err := f.manager.Execute(ctx)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, result.Errors, vErr.Result.Errors)

		_, err = f.manager.ExecuteParallel(ctx, nil)
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestExecuteSequential(t *testing.T) {
	t.Run("runs the whole graph", func(t *testing.T) {
		f := newManagerFixture(t, Config{})
		ctx := context.Background()

		f.manager.LoadGraph(ctx, diamondGraph())
		results, err := f.manager.Execute(ctx)

		require.NoError(t, err)
		require.Len(t, results, 4)
		for id, result := range results {
			assert.True(t, result.Success, "task %s", id)
			status, err := f.manager.GetTaskStatus(id)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusCompleted, status)
		}
	})

	t.Run("cascades dependency failures level by level", func(t *testing.T) {
		f := newManagerFixture(t, Config{})
		ctx := context.Background()

		g := domain.NewTaskGraph(
			[]domain.TaskNode{
				{ID: "root", Command: "exit 1"},
				{ID: "child", Command: "echo should-not-run", DependsOn: []string{"root"}},
				{ID: "grandchild", Command: "echo should-not-run", DependsOn: []string{"child"}},
				{ID: "bystander", Command: "true"},
			},
			nil,
		)

		f.manager.LoadGraph(ctx, g)
		results, err := f.manager.Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 4)

		assert.False(t, results["root"].Success)
		assert.Equal(t, 1, results["root"].ExitCode)

		// Skipped without ever launching: no output, direct parent named.
		assert.Equal(t, "skipped due to failed dependency: root", results["child"].Error)
		assert.Empty(t, results["child"].Stdout)
		assert.Equal(t, "skipped due to failed dependency: child", results["grandchild"].Error)

		// Independent branches still run.
		assert.True(t, results["bystander"].Success)

		for _, id := range []string{"root", "child", "grandchild"} {
			status, err := f.manager.GetTaskStatus(id)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusFailed, status)
		}
	})

	t.Run("records context snapshots", func(t *testing.T) {
		f := newManagerFixture(t, Config{EffectiveConfig: map[string]string{"mode": "test"}})
		ctx := context.Background()

		f.manager.LoadGraph(ctx, diamondGraph())
		_, err := f.manager.Execute(ctx)
		require.NoError(t, err)

		snapshot, ok := f.manager.GetSnapshot("d")
		require.True(t, ok)
		assert.Equal(t, "d", snapshot.TaskID)
		assert.Equal(t, "test", snapshot.Context.Config["mode"])
		assert.Len(t, snapshot.Context.Dependencies, 2)
	})
}

func TestExecuteParallelViaManager(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	f.manager.LoadGraph(ctx, diamondGraph())
	results, err := f.manager.ExecuteParallel(ctx, nil)

	require.NoError(t, err)
	require.Len(t, results, 4)
	for id := range results {
		status, err := f.manager.GetTaskStatus(id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, status)
	}
}

func TestEventLog(t *testing.T) {
	t.Run("captures lifecycle transitions in order", func(t *testing.T) {
		f := newManagerFixture(t, Config{})
		ctx := context.Background()

		f.manager.LoadGraph(ctx, chainGraph(2))
		_, err := f.manager.Execute(ctx)
		require.NoError(t, err)

		events := f.manager.GetEvents()
		require.Len(t, events, 4)
		assert.Equal(t, "t0", events[0].TaskID)
		assert.Equal(t, domain.TaskStatusRunning, events[0].Status)
		assert.Equal(t, domain.TaskStatusCompleted, events[1].Status)
		assert.Equal(t, "t1", events[2].TaskID)
	})

	t.Run("bounded log keeps most-recent entries", func(t *testing.T) {
		f := newManagerFixture(t, Config{EventLogCap: 3})
		ctx := context.Background()

		f.manager.LoadGraph(ctx, chainGraph(4))
		_, err := f.manager.Execute(ctx)
		require.NoError(t, err)

		events := f.manager.GetEvents()
		require.Len(t, events, 3)
		// 8 transitions happened; only the newest 3 survive.
		assert.Equal(t, "t2", events[0].TaskID)
		assert.Equal(t, domain.TaskStatusCompleted, events[0].Status)
		assert.Equal(t, "t3", events[1].TaskID)
		assert.Equal(t, "t3", events[2].TaskID)
		assert.Equal(t, domain.TaskStatusCompleted, events[2].Status)
	})
}

func TestQueries(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	t.Run("unknown task", func(t *testing.T) {
		f.manager.LoadGraph(ctx, diamondGraph())

		_, err := f.manager.GetTaskStatus("nope")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)

		_, err = f.manager.GetResult("nope")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("result immutable once recorded", func(t *testing.T) {
		f.manager.LoadGraph(ctx, diamondGraph())
		_, err := f.manager.Execute(ctx)
		require.NoError(t, err)

		result, err := f.manager.GetResult("a")
		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("context snapshot on demand", func(t *testing.T) {
		f.manager.LoadGraph(ctx, diamondGraph())

		snapshot, err := f.manager.CreateContextSnapshot("b")
		require.NoError(t, err)
		assert.Equal(t, "b", snapshot.TaskID)
		assert.Empty(t, snapshot.Context.Dependencies)

		_, err = f.manager.CreateContextSnapshot("nope")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestReset(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	f.manager.LoadGraph(ctx, diamondGraph())
	_, err := f.manager.Execute(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, f.manager.GetAllResults())

	runID := f.manager.RunID()
	f.manager.Reset(ctx)

	assert.Empty(t, f.manager.GetAllResults())
	assert.Empty(t, f.manager.GetEvents())
	assert.Equal(t, runID, f.manager.RunID())

	statuses := f.manager.GetAllStatuses()
	require.Len(t, statuses, 4)
	for id, status := range statuses {
		assert.Equal(t, domain.TaskStatusPending, status, "task %s", id)
	}

	// The graph survives a reset and can run again.
	results, err := f.manager.Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestRunStatePersistence(t *testing.T) {
	f := newManagerFixture(t, Config{})
	ctx := context.Background()

	f.manager.LoadGraph(ctx, diamondGraph())
	_, err := f.manager.Execute(ctx)
	require.NoError(t, err)

	state, err := f.store.Load(ctx, f.manager.RunID())
	require.NoError(t, err)

	assert.Equal(t, f.manager.RunID(), state.RunID)
	require.NotNil(t, state.Graph)
	assert.Len(t, state.Statuses, 4)
	assert.Len(t, state.Results, 4)
	for id, status := range state.Statuses {
		assert.Equal(t, domain.TaskStatusCompleted, status, "task %s", id)
	}
}
