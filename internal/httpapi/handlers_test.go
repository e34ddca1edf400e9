package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "http.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := eventbus.New(logger)
	orch := orchestrator.New(st, bus, logger, orchestrator.Config{MaxConcurrentBackground: 4, ProgressCoalesceWindow: time.Millisecond})
	require.NoError(t, orch.RegisterTaskType("noop", orchestrator.ClassBackground, orchestrator.RunFunc(func(ctx context.Context, deps orchestrator.TaskDeps) error {
		deps.Progress(1, 1, "done", nil)
		return nil
	}), 0))
	require.NoError(t, orch.Start(context.Background()))

	deps := facade.Deps{Store: st, Orchestrator: orch, Bus: bus, Logger: logger}
	s := New(facade.New(), deps, logger, "127.0.0.1", 0)
	return s, st
}

func TestHandleCreateTaskAndGet(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/tasks/noop", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct{ TaskID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.TaskID)

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest(http.MethodGet, "/tasks/"+created.TaskID, nil)
		getRec := httptest.NewRecorder()
		s.router.ServeHTTP(getRec, getReq)
		return getRec.Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestHandleGetTaskNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStartCrawlValidation(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/crawls", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
