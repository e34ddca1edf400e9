package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(arbor.NewLogger(), Options{Path: dbPath, MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetTask(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.CreateTask(ctx, "task-1", "crawl", json.RawMessage(`{"url":"https://example.com/"}`))
	require.NoError(t, err)

	task, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "crawl", task.Type)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
}

func TestCreateTaskDuplicateID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, "dup", "crawl", nil))
	err := s.CreateTask(ctx, "dup", "crawl", nil)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestUpdateTaskStatusSetsStartedAtOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "crawl", nil))

	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))
	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, task.StartedAt)
	firstStart := *task.StartedAt

	// Pausing and resuming must not move started_at.
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusPaused, StatusUpdateOptions{}))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))
	task, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, firstStart.Unix(), task.StartedAt.Unix())
}

func TestUpdateTaskStatusRejectsTerminalMutation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "crawl", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusCompleted, StatusUpdateOptions{}))

	err := s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// IP2: no field changes after a rejected transition.
	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestResumeStartedAtLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "compression", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))

	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusResuming, StatusUpdateOptions{}))
	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, task.ResumeStartedAt)

	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))
	task, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, task.ResumeStartedAt)
}

func TestFindInterruptedTasks(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTask(ctx, "running", "crawl", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "running", StatusRunning, StatusUpdateOptions{}))

	require.NoError(t, s.CreateTask(ctx, "resuming", "crawl", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "resuming", StatusResuming, StatusUpdateOptions{}))

	require.NoError(t, s.CreateTask(ctx, "pending", "crawl", nil))

	require.NoError(t, s.CreateTask(ctx, "done", "crawl", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "done", StatusRunning, StatusUpdateOptions{}))
	require.NoError(t, s.UpdateTaskStatus(ctx, "done", StatusCompleted, StatusUpdateOptions{}))

	interrupted, err := s.FindInterruptedTasks(ctx)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, t := range interrupted {
		ids[t.ID] = true
	}
	assert.True(t, ids["running"])
	assert.True(t, ids["resuming"])
	assert.False(t, ids["pending"])
	assert.False(t, ids["done"])
	assert.Len(t, interrupted, 2)
}

func TestProgressMonotonicUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "compression", nil))

	one := int64(1)
	total := int64(100)
	require.NoError(t, s.UpdateProgress(ctx, "t1", ProgressUpdate{Current: &one, Total: &total}))

	fortyTwo := int64(42)
	require.NoError(t, s.UpdateProgress(ctx, "t1", ProgressUpdate{Current: &fortyTwo}))

	task, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), task.ProgressCurrent)
	assert.Equal(t, int64(100), task.ProgressTotal)
}

func TestAppendTelemetryIsBestEffort(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "crawl", nil))

	s.AppendQueueEvent(ctx, "t1", QueueEvent{Action: "enqueue", URL: "https://example.com/a", Host: "example.com"})
	s.AppendProblem(ctx, "t1", Problem{Kind: "silence", Message: "no output"})
	s.AppendMilestone(ctx, "t1", Milestone{Kind: "seed-complete"})
	s.AppendPlannerStage(ctx, "t1", PlannerStageEvent{Stage: "seed", Decision: "accept"})

	events, err := s.ListQueueEvents(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "enqueue", events[0].Action)
}

func TestDeleteTaskRemovesRowAndTelemetry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTask(ctx, "t1", "crawl", nil))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusRunning, StatusUpdateOptions{}))
	require.NoError(t, s.UpdateTaskStatus(ctx, "t1", StatusCancelled, StatusUpdateOptions{}))
	s.AppendProblem(ctx, "t1", Problem{Kind: "x"})

	require.NoError(t, s.DeleteTask(ctx, "t1"))

	_, err := s.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)
}
