package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/taskdag/internal/application/workers"
	"github.com/aescanero/taskdag/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T, cfg Config, poolSize int) *Executor {
	t.Helper()

	pool := workers.NewPool(poolSize, nil, zap.NewNop(), time.Minute)
	require.NoError(t, pool.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})

	return New(cfg, pool, nil, zap.NewNop())
}

func TestExecute(t *testing.T) {
	e := newTestExecutor(t, Config{DefaultTimeout: 30 * time.Second}, 2)
	ctx := context.Background()

	t.Run("successful command", func(t *testing.T) {
		result := e.Execute(ctx, &domain.TaskNode{ID: "ok", Command: "echo hello"}, nil)

		assert.True(t, result.Success)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello\n", result.Stdout)
		assert.Empty(t, result.Error)
		assert.Greater(t, result.Duration, time.Duration(0))
	})

	t.Run("non-zero exit is a result, not an error", func(t *testing.T) {
		result := e.Execute(ctx, &domain.TaskNode{ID: "fail", Command: "exit 3"}, nil)

		assert.False(t, result.Success)
		assert.Equal(t, 3, result.ExitCode)
		assert.Equal(t, "command exited with code 3", result.Error)
	})

	t.Run("stderr captured separately", func(t *testing.T) {
		result := e.Execute(ctx, &domain.TaskNode{ID: "err", Command: "echo oops >&2"}, nil)

		assert.True(t, result.Success)
		assert.Empty(t, result.Stdout)
		assert.Equal(t, "oops\n", result.Stderr)
	})

	t.Run("shell semantics preserved", func(t *testing.T) {
		result := e.Execute(ctx, &domain.TaskNode{ID: "pipe", Command: "echo one two | wc -w"}, nil)

		require.True(t, result.Success)
		assert.Contains(t, result.Stdout, "2")
	})

	t.Run("environment overlay wins over host", func(t *testing.T) {
		t.Setenv("TASKDAG_TEST_VAR", "host")

		result := e.Execute(ctx, &domain.TaskNode{
			ID:      "env",
			Command: "echo $TASKDAG_TEST_VAR",
			Env:     map[string]string{"TASKDAG_TEST_VAR": "overlay"},
		}, nil)

		require.True(t, result.Success)
		assert.Equal(t, "overlay\n", result.Stdout)
	})

	t.Run("working directory", func(t *testing.T) {
		dir := t.TempDir()

		result := e.Execute(ctx, &domain.TaskNode{
			ID:         "wd",
			Command:    "pwd",
			WorkingDir: dir,
		}, nil)

		require.True(t, result.Success)
		assert.Contains(t, result.Stdout, dir)
	})

	t.Run("modified files reported", func(t *testing.T) {
		dir := t.TempDir()

		result := e.Execute(ctx, &domain.TaskNode{
			ID:         "touch",
			Command:    "touch created.txt",
			WorkingDir: dir,
		}, nil)

		require.True(t, result.Success)
		assert.Contains(t, result.FilesModified, "created.txt")
	})
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(t, Config{DefaultTimeout: 30 * time.Second}, 1)

	result := e.Execute(context.Background(), &domain.TaskNode{
		ID:      "slow",
		Command: "sleep 10",
		Timeout: 200 * time.Millisecond,
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "timed out after 200ms")
	assert.Less(t, result.Duration, 5*time.Second)
}

func TestExecuteLaunchFailure(t *testing.T) {
	e := newTestExecutor(t, Config{}, 1)

	result := e.Execute(context.Background(), &domain.TaskNode{
		ID:         "badcwd",
		Command:    "true",
		WorkingDir: "/nonexistent/path/for/sure",
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "failed to start command")
}

func TestCancel(t *testing.T) {
	t.Run("cancels a running task", func(t *testing.T) {
		e := newTestExecutor(t, Config{DefaultTimeout: 30 * time.Second}, 1)

		resultCh := make(chan *domain.ExecutionResult, 1)
		go func() {
			resultCh <- e.Execute(context.Background(), &domain.TaskNode{ID: "long", Command: "sleep 30"}, nil)
		}()

		require.Eventually(t, func() bool {
			return len(e.RunningTasks()) == 1
		}, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, e.Cancel("long"))

		select {
		case result := <-resultCh:
			assert.False(t, result.Success)
			assert.Equal(t, -1, result.ExitCode)
			assert.Equal(t, "task cancelled", result.Error)
		case <-time.After(5 * time.Second):
			t.Fatal("task did not stop after cancel")
		}

		assert.Empty(t, e.RunningTasks())
	})

	t.Run("unknown task", func(t *testing.T) {
		e := newTestExecutor(t, Config{}, 1)

		err := e.Cancel("nope")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})
}

func TestCancelAll(t *testing.T) {
	e := newTestExecutor(t, Config{DefaultTimeout: 30 * time.Second}, 3)

	var mu sync.Mutex
	var cancelledEvents []string
	e.OnEvent(func(event domain.TaskEvent) {
		if event.Status == domain.TaskStatusCancelled {
			mu.Lock()
			cancelledEvents = append(cancelledEvents, event.TaskID)
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2", "s3"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e.Execute(context.Background(), &domain.TaskNode{ID: id, Command: "sleep 30"}, nil)
		}(id)
	}

	require.Eventually(t, func() bool {
		return len(e.RunningTasks()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, e.CancelAll())
	wg.Wait()

	assert.Empty(t, e.RunningTasks())
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, cancelledEvents)
}

func TestListeners(t *testing.T) {
	t.Run("events broadcast in lifecycle order", func(t *testing.T) {
		e := newTestExecutor(t, Config{}, 1)

		var mu sync.Mutex
		var statuses []domain.TaskStatus
		e.OnEvent(func(event domain.TaskEvent) {
			mu.Lock()
			statuses = append(statuses, event.Status)
			mu.Unlock()
		})

		e.Execute(context.Background(), &domain.TaskNode{ID: "t", Command: "true"}, nil)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusCompleted}, statuses)
	})

	t.Run("panicking listener does not affect others or the task", func(t *testing.T) {
		e := newTestExecutor(t, Config{}, 1)

		e.OnEvent(func(event domain.TaskEvent) {
			panic("misbehaving listener")
		})

		got := 0
		e.OnEvent(func(event domain.TaskEvent) {
			got++
		})

		result := e.Execute(context.Background(), &domain.TaskNode{ID: "t", Command: "true"}, nil)

		assert.True(t, result.Success)
		assert.Equal(t, 2, got)
	})

	t.Run("removed listener stops receiving", func(t *testing.T) {
		e := newTestExecutor(t, Config{}, 1)

		got := 0
		id := e.OnEvent(func(event domain.TaskEvent) {
			got++
		})
		e.OffEvent(id)

		e.Execute(context.Background(), &domain.TaskNode{ID: "t", Command: "true"}, nil)
		assert.Zero(t, got)
	})
}

func TestExecuteContextCancelled(t *testing.T) {
	e := newTestExecutor(t, Config{DefaultTimeout: 30 * time.Second}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result := e.Execute(ctx, &domain.TaskNode{ID: "ctx", Command: "sleep 30"}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "execution cancelled")
}
