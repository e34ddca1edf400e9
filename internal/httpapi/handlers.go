package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/orcaweaver/internal/facade"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, facade.ErrInvalidCrawlOptions):
		status = http.StatusBadRequest
	case errors.Is(err, facade.ErrCrawlAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, facade.ErrUnknownTaskType):
		status = http.StatusBadRequest
	case errors.Is(err, facade.ErrTaskNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, facade.ErrDomainNotReady):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrTaskNotActive):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, store.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type startCrawlRequest struct {
	URL      string   `json:"url"`
	Args     []string `json:"args,omitempty"`
	MaxPages int      `json:"maxPages,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// POST /crawls
func (s *Server) handleStartCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, facade.ErrInvalidCrawlOptions)
		return
	}

	result, err := s.facade.StartCrawl(r.Context(), s.deps, facade.StartCrawlOptions{
		URL: req.URL, Args: req.Args, MaxPages: req.MaxPages, Priority: req.Priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

type guessPlaceHubsRequest struct {
	Domains []string `json:"domains"`
	Kinds   []string `json:"kinds"`
	Limit   int      `json:"limit"`
	Apply   bool     `json:"apply"`
}

// POST /place-hubs/guess
func (s *Server) handleGuessPlaceHubs(w http.ResponseWriter, r *http.Request) {
	var req guessPlaceHubsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, facade.ErrInvalidCrawlOptions)
		return
	}

	result, err := s.facade.GuessPlaceHubs(r.Context(), s.deps, facade.GuessPlaceHubsOptions{
		Domains: req.Domains, Kinds: req.Kinds, Limit: req.Limit, Apply: req.Apply,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /tasks/{type}
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	taskType := r.PathValue("type")

	body, err := readRawBody(r)
	if err != nil {
		writeError(w, facade.ErrInvalidCrawlOptions)
		return
	}

	result, err := s.facade.StartBackgroundTask(r.Context(), s.deps, taskType, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func readRawBody(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if r.ContentLength == 0 {
		return json.RawMessage(`{}`), nil
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GET /tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := facade.ListTasksOptions{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Order:  q.Get("order"),
	}
	views, err := s.facade.ListTasks(r.Context(), s.deps, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GET /tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	view, err := s.facade.GetTask(r.Context(), s.deps, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DELETE /tasks/{id}
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.DeleteTask(r.Context(), s.deps, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /tasks/{id}/pause
func (s *Server) handlePauseTask(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.PauseTask(r.Context(), s.deps, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// POST /tasks/{id}/resume
func (s *Server) handleResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.ResumeTask(r.Context(), s.deps, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// POST /tasks/{id}/stop
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.CancelTask(r.Context(), s.deps, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
