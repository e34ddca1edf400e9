// Package facade is the single dependency-injected entry point shared by
// the CLI and HTTP adapters (SPEC_FULL.md §4.7 / spec.md §4.7). It accepts
// fully-parsed option structs and an injected dependency bundle, returns
// plain data structures, and raises domain errors rather than HTTP or CLI
// error types — both adapters translate those errors into their own
// surface.
//
// Grounded on the teacher's internal/app.App: an explicit struct of wired
// dependencies built once in New(), with every method taking that struct's
// fields rather than reaching for package-level state. This is the "no
// module-level state survives between tests" re-architecture spec.md's
// DESIGN NOTES calls for, generalized from an app-wide singleton into a
// facade whose every call receives its dependency bundle explicitly.
package facade

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/gazetteer"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/store"
)

// Domain errors. Never translated here to HTTP status codes or CLI exit
// text; the adapters own that mapping.
var (
	ErrCrawlAlreadyRunning  = errors.New("facade: a crawl for this url is already active")
	ErrInvalidCrawlOptions  = errors.New("facade: invalid crawl options")
	ErrDomainNotReady       = errors.New("facade: domain has insufficient gazetteer signal")
	ErrUnknownTaskType      = orchestrator.ErrUnknownTaskType
	ErrTaskNotFound         = errors.New("facade: task not found")
)

// Deps is the dependency bundle every Facade method call is threaded
// through, per spec.md §9's re-architecture note ("replace [global mutable
// singletons] with explicit dependency injection ... no module-level state
// survives between tests").
type Deps struct {
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Bus          *eventbus.Bus
	Gazetteer    *gazetteer.Cache
	Logger       arbor.ILogger
}

// Facade is a thin, stateless wrapper over Deps: it holds no fields of its
// own so that every test constructs a fresh Deps bundle rather than
// mutating shared state between cases.
type Facade struct{}

// New returns the stateless Facade. Kept as a constructor (rather than bare
// functions) so CLI/HTTP call sites read identically to every other
// component in this module.
func New() *Facade { return &Facade{} }

// StartCrawlOptions is the fully-parsed input to StartCrawl; CLI flag
// parsing and HTTP JSON decoding both produce this struct before calling
// the facade.
type StartCrawlOptions struct {
	URL      string
	Args     []string
	MaxPages int
	Priority int
}

// StartCrawlResult is returned on successful crawl admission.
type StartCrawlResult struct {
	JobID     string
	StartedAt time.Time
	Args      []string
	Stage     string
}

// StartBackgroundTaskResult is returned on successful background task
// admission.
type StartBackgroundTaskResult struct {
	TaskID string
}

// GuessPlaceHubsOptions is the fully-parsed input to GuessPlaceHubs.
type GuessPlaceHubsOptions struct {
	Domains []string
	Kinds   []string
	Limit   int
	Apply   bool
}

// DomainSummary is the per-domain readiness verdict GuessPlaceHubs reports.
type DomainSummary struct {
	Domain         string
	Readiness      ReadinessView
	CandidateCount int
	Candidates     []string
}

// ReadinessView mirrors gazetteer.Readiness's return shape as exported data.
type ReadinessView struct {
	Status string
	Reason string
}

// DiffPreview lists domains by GuessPlaceHubs' verdict: in a dry run,
// Inserted holds domains with unknown readiness; with Apply set, Updated
// holds ready domains. GuessPlaceHubs writes nothing to the gazetteer cache
// in either mode.
type DiffPreview struct {
	Inserted []string
	Updated  []string
}

// GuessPlaceHubsResult is the facade-level return value for a place-hub
// guessing batch, per spec.md §4.7 and §8 scenario 6.
type GuessPlaceHubsResult struct {
	Totals struct {
		ProcessedDomains int
	}
	DomainSummaries []DomainSummary
	DiffPreview     DiffPreview
	Errors          []string
}

// TaskView is the plain data structure the facade returns for a task row,
// decoupled from store.Task so HTTP/CLI never import internal/store types
// directly.
type TaskView struct {
	ID              string
	Type            string
	Status          string
	Config          json.RawMessage
	Metadata        json.RawMessage
	ProgressCurrent int64
	ProgressTotal   int64
	ProgressMessage string
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	ResumeStartedAt *time.Time
}

func taskView(t *store.Task) TaskView {
	return TaskView{
		ID: t.ID, Type: t.Type, Status: string(t.Status),
		Config: t.Config, Metadata: t.Metadata,
		ProgressCurrent: t.ProgressCurrent, ProgressTotal: t.ProgressTotal,
		ProgressMessage: t.ProgressMessage, ErrorMessage: t.ErrorMessage,
		CreatedAt: t.CreatedAt, StartedAt: t.StartedAt, UpdatedAt: t.UpdatedAt,
		CompletedAt: t.CompletedAt, ResumeStartedAt: t.ResumeStartedAt,
	}
}

// ListTasksOptions narrows a ListTasks snapshot query.
type ListTasksOptions struct {
	Status string
	Type   string
	Limit  int
	Order  string
}
