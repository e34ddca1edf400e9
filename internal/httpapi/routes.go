package httpapi

import "net/http"

// setupRoutes registers every endpoint from spec.md §6 "HTTP adapter" on a
// stdlib enhanced ServeMux (method + path-variable patterns), grounded on
// the route-registration style of internal/server/routes.go.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /crawls", s.handleStartCrawl)
	mux.HandleFunc("POST /place-hubs/guess", s.handleGuessPlaceHubs)

	mux.HandleFunc("POST /tasks/{type}", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /tasks/{id}/pause", s.handlePauseTask)
	mux.HandleFunc("POST /tasks/{id}/resume", s.handleResumeTask)
	mux.HandleFunc("POST /tasks/{id}/stop", s.handleCancelTask)

	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
