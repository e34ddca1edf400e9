package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/store"
)

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *store.Store, *eventbus.Bus) {
	t.Helper()
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "test.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New(logger)
	return New(st, bus, logger, cfg), st, bus
}

// instantConstructor reports progress once, hands its task id to result if
// a receiver is ready, and returns at once; used to exercise
// admission/scheduling without real work.
func instantConstructor(result chan<- string) ConstructorFunc {
	return RunFunc(func(ctx context.Context, deps TaskDeps) error {
		deps.Progress(1, 1, "done", nil)
		select {
		case result <- deps.TaskID:
		default:
		}
		return nil
	})
}

func blockingConstructor() ConstructorFunc {
	return RunFunc(func(ctx context.Context, deps TaskDeps) error {
		<-deps.Cancel
		return nil
	})
}

func TestCreateTaskRejectsUnknownType(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, Config{})
	_, err := o.CreateTask(context.Background(), "nope", json.RawMessage(`{}`), 0)
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestRegisterTaskTypeRejectedAfterStart(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, Config{})
	require.NoError(t, o.Start(context.Background()))
	err := o.RegisterTaskType("late", ClassBackground, instantConstructor(nil), 0)
	assert.ErrorIs(t, err, ErrOrchestratorStarted)
}

func TestCreateTaskRunsToCompletion(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, Config{MaxConcurrentBackground: 2, ProgressCoalesceWindow: time.Millisecond})
	results := make(chan string, 1)
	require.NoError(t, o.RegisterTaskType("noop", ClassBackground, instantConstructor(results), 0))
	require.NoError(t, o.Start(context.Background()))

	sub := bus.Subscribe(eventbus.TaskCompleted)
	defer sub.Cancel()

	id, err := o.CreateTask(context.Background(), "noop", json.RawMessage(`{}`), 0)
	require.NoError(t, err)

	select {
	case got := <-results:
		assert.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("constructor never ran")
	}

	require.Eventually(t, func() bool {
		task, err := st.GetTask(context.Background(), id)
		return err == nil && task.Status == store.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("expected a task-completed event")
	}
}

func TestConcurrencyLimitQueuesExcessTasks(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, Config{MaxConcurrentBackground: 1})
	require.NoError(t, o.RegisterTaskType("slow", ClassBackground, blockingConstructor(), 0))
	require.NoError(t, o.Start(context.Background()))

	ctx := context.Background()
	first, err := o.CreateTask(ctx, "slow", json.RawMessage(`{}`), 0)
	require.NoError(t, err)
	second, err := o.CreateTask(ctx, "slow", json.RawMessage(`{}`), 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, first)
		return err == nil && task.Status == store.StatusRunning
	}, time.Second, 5*time.Millisecond)

	task, err := st.GetTask(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, task.Status)

	require.NoError(t, o.CancelTask(ctx, first))

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, second)
		return err == nil && task.Status == store.StatusRunning
	}, time.Second, 5*time.Millisecond)
}

func TestCancelTaskIsIdempotent(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, Config{MaxConcurrentBackground: 1})
	require.NoError(t, o.RegisterTaskType("slow", ClassBackground, blockingConstructor(), 0))
	require.NoError(t, o.Start(context.Background()))

	ctx := context.Background()
	id, err := o.CreateTask(ctx, "slow", json.RawMessage(`{}`), 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, id)
		return err == nil && task.Status == store.StatusRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, o.CancelTask(ctx, id))
	require.NoError(t, o.CancelTask(ctx, id)) // idempotent per IP1

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, id)
		return err == nil && task.Status.IsTerminal()
	}, time.Second, 5*time.Millisecond)
}

func TestRecoverInterruptedTasksResumesAndClearsOnFirstProgress(t *testing.T) {
	o, st, bus := newTestOrchestrator(t, Config{MaxConcurrentBackground: 1, StuckResumingTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, st.CreateTask(ctx, "interrupted-1", "noop", json.RawMessage(`{}`)))
	require.NoError(t, st.UpdateTaskStatus(ctx, "interrupted-1", store.StatusRunning, store.StatusUpdateOptions{}))

	gate := make(chan struct{})
	ctor := RunFunc(func(ctx context.Context, deps TaskDeps) error {
		<-gate
		deps.Progress(1, 1, "resumed", nil)
		return nil
	})
	require.NoError(t, o.RegisterTaskType("noop", ClassBackground, ctor, 0))

	sub := bus.Subscribe(eventbus.TaskProblem)
	defer sub.Cancel()

	require.NoError(t, o.Start(ctx))

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, "interrupted-1")
		return err == nil && task.Status == store.StatusResuming
	}, time.Second, 5*time.Millisecond)

	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("expected a stuck-resuming problem before the task progresses")
	}

	close(gate)

	require.Eventually(t, func() bool {
		task, err := st.GetTask(ctx, "interrupted-1")
		return err == nil && task.Status == store.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}
