package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/gazetteer"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/store"
)

// StartCrawl validates options, checks for an already-active crawl against
// the same seed URL, and admits a new crawl task through the orchestrator.
// Errors: ErrInvalidCrawlOptions, ErrCrawlAlreadyRunning, or a
// store.ErrStoreUnavailable bubbled from CreateTask.
func (f *Facade) StartCrawl(ctx context.Context, deps Deps, opts StartCrawlOptions) (StartCrawlResult, error) {
	if opts.URL == "" {
		return StartCrawlResult{}, ErrInvalidCrawlOptions
	}

	active, err := deps.Store.ListTasks(ctx, store.ListFilter{Limit: 0})
	if err != nil {
		return StartCrawlResult{}, err
	}
	for _, t := range active {
		if t.Type != orchestrator.CrawlTaskType || t.Status.IsTerminal() {
			continue
		}
		var cfg orchestrator.CrawlConfig
		if json.Unmarshal(t.Config, &cfg) == nil && cfg.URL == opts.URL {
			return StartCrawlResult{}, ErrCrawlAlreadyRunning
		}
	}

	cfg := orchestrator.CrawlConfig{URL: opts.URL, Args: opts.Args, MaxPages: opts.MaxPages}
	config, err := json.Marshal(cfg)
	if err != nil {
		return StartCrawlResult{}, ErrInvalidCrawlOptions
	}

	id, err := deps.Orchestrator.CreateTask(ctx, orchestrator.CrawlTaskType, config, opts.Priority)
	if err != nil {
		return StartCrawlResult{}, err
	}

	return StartCrawlResult{JobID: id, StartedAt: time.Now(), Args: opts.Args, Stage: "queued"}, nil
}

// StartBackgroundTask admits a task of the given in-process type. Errors:
// ErrUnknownTaskType, or a store error from CreateTask.
func (f *Facade) StartBackgroundTask(ctx context.Context, deps Deps, taskType string, config json.RawMessage) (StartBackgroundTaskResult, error) {
	if config == nil {
		config = json.RawMessage(`{}`)
	}
	id, err := deps.Orchestrator.CreateTask(ctx, taskType, config, 0)
	if err != nil {
		return StartBackgroundTaskResult{}, err
	}
	return StartBackgroundTaskResult{TaskID: id}, nil
}

// GetTask loads one task row as a TaskView. Returns ErrTaskNotFound if
// absent.
func (f *Facade) GetTask(ctx context.Context, deps Deps, id string) (TaskView, error) {
	t, err := deps.Store.GetTask(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return TaskView{}, ErrTaskNotFound
		}
		return TaskView{}, err
	}
	return taskView(t), nil
}

// ListTasks returns an ordered snapshot of task rows.
func (f *Facade) ListTasks(ctx context.Context, deps Deps, opts ListTasksOptions) ([]TaskView, error) {
	filter := store.ListFilter{Limit: opts.Limit, Order: opts.Order}
	if opts.Status != "" {
		s := store.Status(opts.Status)
		filter.Status = &s
	}
	if opts.Type != "" {
		filter.Type = &opts.Type
	}
	tasks, err := deps.Store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	return views, nil
}

// PauseTask, ResumeTask and CancelTask forward to the Orchestrator's
// control operations unchanged; their no-op/idempotence semantics are
// documented on the Orchestrator methods themselves (spec.md §4.6, IP1).
func (f *Facade) PauseTask(ctx context.Context, deps Deps, id string) error {
	return deps.Orchestrator.PauseTask(ctx, id)
}

func (f *Facade) ResumeTask(ctx context.Context, deps Deps, id string) error {
	return deps.Orchestrator.ResumeTask(ctx, id)
}

func (f *Facade) CancelTask(ctx context.Context, deps Deps, id string) error {
	return deps.Orchestrator.CancelTask(ctx, id)
}

// DeleteTask removes a terminal task row and its telemetry permanently.
func (f *Facade) DeleteTask(ctx context.Context, deps Deps, id string) error {
	return deps.Store.DeleteTask(ctx, id)
}

// SubscribeEvents exposes the EventBus subscription capability directly;
// HTTP SSE and CLI tailers both consume the same Subscription type.
func (f *Facade) SubscribeEvents(deps Deps, topics ...eventbus.Topic) *eventbus.Subscription {
	return deps.Bus.Subscribe(topics...)
}

// GuessPlaceHubs is a synchronous (non-task) facade operation: it inspects
// the gazetteer cache's readiness verdict and candidate hubs for each
// requested domain. It writes nothing to the cache in either mode: in apply
// mode ready domains are listed under DiffPreview.Updated and other domains
// are reported in Errors; in a dry run (Apply=false) domains with unknown
// readiness are listed under DiffPreview.Inserted. Per spec.md §4.7 / §8
// scenario 6, a dry run performs no durable mutation.
func (f *Facade) GuessPlaceHubs(ctx context.Context, deps Deps, opts GuessPlaceHubsOptions) (GuessPlaceHubsResult, error) {
	var result GuessPlaceHubsResult
	if deps.Gazetteer == nil {
		return result, fmt.Errorf("facade: gazetteer cache not configured")
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = []string{string(gazetteer.KindCountry)}
	}

	for _, domain := range opts.Domains {
		status, reason := deps.Gazetteer.Readiness(domain)
		summary := DomainSummary{Domain: domain, Readiness: ReadinessView{Status: status, Reason: reason}}

		for _, kind := range opts.Kinds {
			hubs := deps.Gazetteer.CandidateHubs(domain, kind)
			if opts.Limit > 0 && len(hubs) > opts.Limit {
				hubs = hubs[:opts.Limit]
			}
			summary.Candidates = append(summary.Candidates, hubs...)
		}
		summary.CandidateCount = len(summary.Candidates)

		if opts.Apply {
			if status != "ready" {
				result.Errors = append(result.Errors, fmt.Errorf("%s: %w", domain, ErrDomainNotReady).Error())
			} else {
				result.DiffPreview.Updated = append(result.DiffPreview.Updated, domain)
			}
		} else {
			// Dry run: report what would be inserted without touching the
			// cache, per scenario 6's "No durable mutation has occurred".
			if status == "unknown" {
				result.DiffPreview.Inserted = append(result.DiffPreview.Inserted, domain)
			}
		}

		result.DomainSummaries = append(result.DomainSummaries, summary)
		result.Totals.ProcessedDomains++
	}

	return result, nil
}
