// Package orchestrator is the central lifecycle manager for tasks: it
// registers task-type constructors, dispatches task creation to them under
// a pair of concurrency caps (crawl jobs, background tasks), and owns the
// resume-on-boot recovery pass.
//
// Grounded on the teacher's internal/jobs/orchestrator/job_orchestrator.go
// (ticker-driven monitoring goroutine, status-transition-then-publish
// idiom) and internal/services/jobs/manager.go + registry.go (type registry
// with rejected-after-start registration), generalized from a single
// parent-job monitor into a type-agnostic admission controller per
// SPEC_FULL.md §4.6.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ternarybob/orcaweaver/internal/store"
)

// TaskClass selects which concurrency cap a task type is admitted under.
type TaskClass string

const (
	ClassCrawl      TaskClass = "crawl"
	ClassBackground TaskClass = "background"
)

var (
	// ErrOrchestratorStarted is returned by RegisterTaskType once Start has
	// been called; registrations are only accepted during boot wiring.
	ErrOrchestratorStarted = errors.New("orchestrator: cannot register task type after start")
	// ErrDuplicateTaskType is returned when a type is registered twice.
	ErrDuplicateTaskType = errors.New("orchestrator: task type already registered")
	// ErrUnknownTaskType is returned by CreateTask for an unregistered type.
	ErrUnknownTaskType = errors.New("orchestrator: unknown task type")
	// ErrTaskNotActive is returned by PauseTask/ResumeTask when the task id
	// has no running handle, and by CancelTask when the task has no running
	// handle, is not pending and is not terminal.
	ErrTaskNotActive = errors.New("orchestrator: task is not active")
	// ErrOperationNotSupported is returned by a Handle whose task type does
	// not implement pause/resume; the orchestrator treats it as a no-op.
	ErrOperationNotSupported = errors.New("orchestrator: operation not supported by this task type")
)

// ProgressFunc is handed to a constructor so its running task can report
// progress without knowing about TaskStore or EventBus. The orchestrator
// coalesces calls per spec §5 ("at most one task-progress event per 100ms
// per task; the latest value wins").
type ProgressFunc func(current, total int64, message string, metadata json.RawMessage)

// Handle is the orchestrator's view of one running task instance, returned
// by a ConstructorFunc. Pause/Resume may return ErrOperationNotSupported for
// task types that do not implement them; Cancel must always be honored and
// must be idempotent.
type Handle interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context) error
	Done() <-chan struct{}
	// Err reports the outcome once Done is closed: nil for success, a
	// non-nil error for failure. Task types that persist their own terminal
	// status (CrawlJobRunner) may always return nil; the orchestrator's
	// own finalize step is then a harmless no-op (the row is already
	// terminal).
	Err() error
}

// TaskDeps is the dependency bundle a ConstructorFunc receives to start one
// task instance.
type TaskDeps struct {
	TaskID   string
	Type     string
	Config   json.RawMessage
	Store    *store.Store
	Progress ProgressFunc
	Cancel   <-chan struct{}
}

// ConstructorFunc builds and starts a running task instance. It must return
// promptly; long-running work happens in goroutines owned by the returned
// Handle.
type ConstructorFunc func(ctx context.Context, deps TaskDeps) (Handle, error)

// Registration is an installed task-type factory.
type Registration struct {
	Type        string
	Class       TaskClass
	Constructor ConstructorFunc
	// Priority is the default admission priority for tasks of this type
	// when none is supplied at creation time; higher runs first.
	Priority int
}

// Config carries the concurrency caps and timeouts from internal/config's
// OrchestratorConfig.
type Config struct {
	MaxConcurrentCrawls     int
	MaxConcurrentBackground int
	StuckResumingTimeout    time.Duration
	ProgressCoalesceWindow  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentCrawls <= 0 {
		c.MaxConcurrentCrawls = 2
	}
	if c.MaxConcurrentBackground <= 0 {
		c.MaxConcurrentBackground = 4
	}
	if c.StuckResumingTimeout <= 0 {
		c.StuckResumingTimeout = 4 * time.Second
	}
	if c.ProgressCoalesceWindow <= 0 {
		c.ProgressCoalesceWindow = 100 * time.Millisecond
	}
	return c
}
