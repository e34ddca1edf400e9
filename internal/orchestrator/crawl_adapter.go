package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/crawljob"
	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/frontier"
	"github.com/ternarybob/orcaweaver/internal/planner"
)

// CrawlTaskType is the task-type name OrchestrationFacade and the HTTP/CLI
// adapters submit crawl jobs under.
const CrawlTaskType = "crawl"

// CrawlConfig is the JSON shape of a crawl task's config column.
type CrawlConfig struct {
	URL       string   `json:"url"`
	Args      []string `json:"args,omitempty"`
	MaxPages  int      `json:"max_pages,omitempty"`
}

// WorkerOptions carries the process-spawn settings every crawl job shares,
// resolved once at boot from internal/config.WorkerConfig.
type WorkerOptions struct {
	BinaryPath     string
	DBPath         string
	SpawnTimeout   time.Duration
	SilenceTimeout time.Duration
	StallTimeout   time.Duration
	ExitGrace      time.Duration
	WatchdogTick   time.Duration
}

// crawlHandle adapts *crawljob.Runner to the orchestrator's Handle
// interface. Err always reports nil: CrawlJobRunner persists its own
// terminal status and error message directly (see runner.go waitForExit),
// so the orchestrator's generic finalize step is a harmless no-op against
// an already-terminal row.
type crawlHandle struct {
	runner *crawljob.Runner
}

func (h *crawlHandle) Pause(ctx context.Context) error  { return h.runner.Pause(ctx) }
func (h *crawlHandle) Resume(ctx context.Context) error { return h.runner.Resume(ctx) }
func (h *crawlHandle) Cancel(ctx context.Context) error { return h.runner.Cancel(ctx) }
func (h *crawlHandle) Done() <-chan struct{}            { return h.runner.Done() }
func (h *crawlHandle) Err() error                       { return nil }

// NewCrawlConstructor builds the ConstructorFunc registered under
// CrawlTaskType: per spec §4 "Ownership" ("Frontier and Planner are owned
// by the CrawlJobRunner for the lifetime of a crawl job"), a fresh Frontier
// and Planner are created for every crawl task rather than shared across
// jobs.
func NewCrawlConstructor(bus *eventbus.Bus, logger arbor.ILogger, flags planner.FeatureFlags, gz planner.GazetteerLookup, wopts WorkerOptions) ConstructorFunc {
	return func(ctx context.Context, deps TaskDeps) (Handle, error) {
		var cfg CrawlConfig
		if err := json.Unmarshal(deps.Config, &cfg); err != nil {
			return nil, errors.New("crawl task config is not valid JSON")
		}
		if cfg.URL == "" {
			return nil, errors.New("crawl task config missing required field: url")
		}

		var args []string
		if cfg.MaxPages > 0 {
			args = append(args, "--max-pages", strconv.Itoa(cfg.MaxPages))
		}
		args = append(args, cfg.Args...)

		fr := frontier.New(frontier.WithScorer(frontier.ScorerConfig{Enabled: flags.CostAwarePriority}))
		pl := planner.New(flags, logger, planner.WithGazetteer(gz))

		runner := crawljob.New(deps.Store, bus, fr, pl, logger, crawljob.Options{
			JobID:          deps.TaskID,
			DBPath:         wopts.DBPath,
			URL:            cfg.URL,
			Args:           args,
			BinaryPath:     wopts.BinaryPath,
			SpawnTimeout:   wopts.SpawnTimeout,
			SilenceTimeout: wopts.SilenceTimeout,
			StallTimeout:   wopts.StallTimeout,
			ExitGrace:      wopts.ExitGrace,
			WatchdogTick:   wopts.WatchdogTick,
		})
		if err := runner.Start(ctx); err != nil {
			return nil, err
		}
		return &crawlHandle{runner: runner}, nil
	}
}
