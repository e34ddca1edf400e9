package crawljob

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/frontier"
	"github.com/ternarybob/orcaweaver/internal/planner"
	"github.com/ternarybob/orcaweaver/internal/store"
)

func newTestHarness(t *testing.T) (*store.Store, *eventbus.Bus, *frontier.Frontier, *planner.Planner) {
	t.Helper()
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "test.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(logger)
	fr := frontier.New()
	pl := planner.New(planner.FeatureFlags{}, logger)
	return st, bus, fr, pl
}

// scriptWorker writes a fake crawl worker as a shell script emitting the
// given stdout lines, one per argument, with a short delay between each so
// the watchdog/coalescing code has time to observe intermediate state.
func scriptWorker(t *testing.T, lines []string, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	script := "#!/bin/sh\n"
	for _, l := range lines {
		script += "echo '" + l + "'\n"
		script += "sleep 0.01\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRunnerHappyPathCompletesTask(t *testing.T) {
	st, bus, fr, pl := newTestHarness(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTask(ctx, "job-1", "crawl", json.RawMessage(`{}`)))
	require.NoError(t, st.UpdateTaskStatus(ctx, "job-1", store.StatusRunning, store.StatusUpdateOptions{}))

	worker := scriptWorker(t, []string{
		`PROGRESS {"current":1,"total":3,"stage":"fetch"}`,
		`PROGRESS {"current":2,"total":3,"stage":"fetch"}`,
		`PROGRESS {"current":3,"total":3,"stage":"fetch"}`,
	}, 0)

	sub := bus.Subscribe(eventbus.TaskCompleted)
	defer sub.Cancel()

	r := New(st, bus, fr, pl, arbor.NewLogger(), Options{
		JobID: "job-1", DBPath: ":memory:", URL: "https://example.com/", BinaryPath: worker,
		WatchdogTick: 10 * time.Millisecond,
	})
	require.NoError(t, r.Start(ctx))

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not complete in time")
	}

	task, err := st.GetTask(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, task.Status)
	assert.Equal(t, int64(3), task.ProgressCurrent)
	assert.NotNil(t, task.CompletedAt)

	select {
	case ev := <-sub.Events:
		summary, ok := ev.Payload.(Summary)
		require.True(t, ok)
		assert.True(t, summary.Success)
	case <-time.After(time.Second):
		t.Fatal("expected a task-completed event")
	}
}

func TestRunnerNonZeroExitFailsTask(t *testing.T) {
	st, bus, fr, pl := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTask(ctx, "job-2", "crawl", json.RawMessage(`{}`)))
	require.NoError(t, st.UpdateTaskStatus(ctx, "job-2", store.StatusRunning, store.StatusUpdateOptions{}))

	worker := scriptWorker(t, []string{`ERROR {"message":"fetch failed","fatal":true}`}, 1)

	r := New(st, bus, fr, pl, arbor.NewLogger(), Options{
		JobID: "job-2", DBPath: ":memory:", URL: "https://example.com/", BinaryPath: worker,
		WatchdogTick: 10 * time.Millisecond,
	})
	require.NoError(t, r.Start(ctx))

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not complete in time")
	}

	task, err := st.GetTask(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, task.Status)
}

func TestRunnerCancelIsIdempotent(t *testing.T) {
	st, bus, fr, pl := newTestHarness(t)
	ctx := context.Background()
	require.NoError(t, st.CreateTask(ctx, "job-3", "crawl", json.RawMessage(`{}`)))
	require.NoError(t, st.UpdateTaskStatus(ctx, "job-3", store.StatusRunning, store.StatusUpdateOptions{}))

	// A worker that stays alive after its first line, so Cancel finds it
	// running and has to force-terminate it after ExitGrace.
	worker := filepath.Join(t.TempDir(), "worker.sh")
	script := "#!/bin/sh\necho 'PROGRESS {\"current\":1,\"total\":0,\"stage\":\"fetch\"}'\nexec sleep 5\n"
	require.NoError(t, os.WriteFile(worker, []byte(script), 0o755))

	r := New(st, bus, fr, pl, arbor.NewLogger(), Options{
		JobID: "job-3", DBPath: ":memory:", URL: "https://example.com/", BinaryPath: worker,
		WatchdogTick: 10 * time.Millisecond, ExitGrace: 50 * time.Millisecond,
	})
	require.NoError(t, r.Start(ctx))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, r.Cancel(ctx))
	require.NoError(t, r.Cancel(ctx)) // idempotent per IP1

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not terminate after cancel")
	}

	task, err := st.GetTask(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, task.Status)
}
