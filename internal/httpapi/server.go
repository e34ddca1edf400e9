// Package httpapi is the thin REST + SSE surface over internal/facade
// (spec.md §6 "HTTP adapter"). Every handler parses its own request,
// calls a Facade method, and maps the returned domain error to an HTTP
// status — it contains no business logic of its own.
//
// Grounded on the teacher's internal/server (Server struct wrapping an
// *http.ServeMux and an *http.Server, middleware chain applied once in New)
// and internal/handlers/sse_logs_handler.go for the SSE flush/heartbeat
// idiom, generalized from the teacher's *app.App-backed handlers onto the
// Facade + Deps dependency bundle.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/facade"
)

// Server is the HTTP adapter's process: an *http.Server wrapping routes
// registered over the Facade.
type Server struct {
	facade *facade.Facade
	deps   facade.Deps
	logger arbor.ILogger

	router *http.ServeMux
	srv    *http.Server
}

// New builds a Server listening on host:port. Routes are registered
// immediately; Start performs no further setup.
func New(f *facade.Facade, deps facade.Deps, logger arbor.ILogger, host string, port int) *Server {
	s := &Server{facade: f, deps: deps, logger: logger}
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", host, port)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start runs the HTTP server; it blocks until the server stops or errors.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.srv.Addr).Msg("http adapter starting")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
