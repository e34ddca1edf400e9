package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/facade"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/store"
)

func TestSchedulerSubmitsOnTick(t *testing.T) {
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "sched.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(logger)
	orch := orchestrator.New(st, bus, logger, orchestrator.Config{})

	seen := make(chan string, 4)
	require.NoError(t, orch.RegisterTaskType("noop", orchestrator.ClassBackground, orchestrator.RunFunc(func(ctx context.Context, deps orchestrator.TaskDeps) error {
		seen <- deps.TaskID
		return nil
	}), 0))
	require.NoError(t, orch.Start(context.Background()))

	f := facade.New()
	deps := facade.Deps{Store: st, Orchestrator: orch, Bus: bus, Logger: logger}

	svc, err := New(f, deps, logger, []Job{{Spec: "@every 20ms", TaskType: "noop"}})
	require.NoError(t, err)
	svc.Start()
	defer svc.Stop()

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never submitted a task")
	}
	assert.True(t, true)
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "sched2.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(logger)
	orch := orchestrator.New(st, bus, logger, orchestrator.Config{})
	deps := facade.Deps{Store: st, Orchestrator: orch, Bus: bus, Logger: logger}

	_, err = New(facade.New(), deps, logger, []Job{{Spec: "not-a-cron-spec", TaskType: "noop"}})
	assert.Error(t, err)
}
