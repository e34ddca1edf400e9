package main

import (
	"context"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/compressor"
	"github.com/ternarybob/orcaweaver/internal/config"
	"github.com/ternarybob/orcaweaver/internal/eventbus"
	"github.com/ternarybob/orcaweaver/internal/facade"
	"github.com/ternarybob/orcaweaver/internal/gazetteer"
	"github.com/ternarybob/orcaweaver/internal/gazetteersource"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/planner"
	"github.com/ternarybob/orcaweaver/internal/scheduler"
	"github.com/ternarybob/orcaweaver/internal/store"
	"github.com/ternarybob/orcaweaver/internal/tasktypes"
)

// process bundles every long-lived component booted from one Config, so
// serve.go can start them in order and close them in reverse on shutdown.
type process struct {
	cfg       *config.Config
	logger    arbor.ILogger
	store     *store.Store
	bus       *eventbus.Bus
	orch      *orchestrator.Orchestrator
	gazetteer *gazetteer.Cache
	scheduler *scheduler.Service
	facade    *facade.Facade
	deps      facade.Deps
}

// loadConfig applies the flag-package override chain quaero's main.go
// uses: default -> file1 -> file2 -> ... -> env -> CLI, auto-discovering
// ./orcaweaver.toml when no -config flag is given.
func loadConfig(configFiles configPaths, port int, host string) (*config.Config, error) {
	if len(configFiles) == 0 {
		if _, err := os.Stat("orcaweaver.toml"); err == nil {
			configFiles = append(configFiles, "orcaweaver.toml")
		}
	}
	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, err
	}
	config.ApplyFlagOverrides(cfg, port, host)
	return cfg, nil
}

// boot constructs every orchestration-process component in the dependency
// order the facade and scheduler require: store -> bus -> orchestrator (with
// every task type registered) -> gazetteer -> facade -> scheduler. It does
// not start the orchestrator or the scheduler; callers decide when (serve.go
// starts both immediately, a one-shot CLI invocation never would since
// HTTP-client subcommands never call boot at all).
func boot(cfg *config.Config, logger arbor.ILogger) (*process, error) {
	st, err := store.Open(logger, store.Options{
		Path:           cfg.Store.Path,
		MaxRetries:     cfg.Store.MaxRetries,
		RetryInitialMS: cfg.Store.RetryInitialMS,
		ResetOnStartup: cfg.Store.ResetOnStartup,
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(logger)

	orch := orchestrator.New(st, bus, logger, orchestrator.Config{
		MaxConcurrentCrawls:     cfg.Orchestrator.MaxConcurrentCrawlJobs,
		MaxConcurrentBackground: cfg.Orchestrator.MaxConcurrentBackground,
		StuckResumingTimeout:    cfg.StuckResumingTimeout(),
		ProgressCoalesceWindow:  cfg.ProgressCoalesceWindow(),
	})

	gz, err := gazetteer.Open(logger, gazetteer.Options{
		Path:            cfg.Gazetteer.Path,
		MinVerifiedHubs: 1,
		ResetOnStartup:  cfg.Store.ResetOnStartup,
		MaxDomains:      cfg.Gazetteer.CacheSize,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	flags := planner.FeatureFlags{
		CostAwarePriority:  cfg.Planner.CostAwarePriority,
		PatternDiscovery:   cfg.Planner.PatternDiscovery,
		AdaptiveBranching:  cfg.Planner.AdaptiveBranching,
		RealTimeAdjustment: cfg.Planner.RealTimeAdjustment,
		DynamicReplanning:  cfg.Planner.DynamicReplanning,
		CrossDomainSharing: cfg.Planner.CrossDomainSharing,
	}

	workerOpts := orchestrator.WorkerOptions{
		BinaryPath:     cfg.Worker.BinaryPath,
		DBPath:         cfg.Store.Path,
		SpawnTimeout:   cfg.SpawnTimeout(),
		SilenceTimeout: cfg.SilenceTimeout(),
		StallTimeout:   cfg.StallTimeout(),
		ExitGrace:      cfg.ExitGrace(),
	}

	if err := orch.RegisterTaskType(orchestrator.CrawlTaskType, orchestrator.ClassCrawl,
		orchestrator.NewCrawlConstructor(bus, logger, flags, gz, workerOpts), 100); err != nil {
		st.Close()
		return nil, err
	}

	zstd, err := compressor.New()
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := orch.RegisterTaskType(tasktypes.CompressionTaskType, orchestrator.ClassBackground,
		tasktypes.NewCompressionConstructor(zstd), 10); err != nil {
		st.Close()
		return nil, err
	}

	if err := orch.RegisterTaskType(tasktypes.AnalysisTaskType, orchestrator.ClassBackground,
		tasktypes.NewAnalysisConstructor(st), 10); err != nil {
		st.Close()
		return nil, err
	}

	gzSource := gazetteersource.New(cfg.Gazetteer.SourceURL, logger)
	if err := orch.RegisterTaskType(tasktypes.GazetteerIngestTaskType, orchestrator.ClassBackground,
		tasktypes.NewGazetteerIngestConstructor(gzSource, gz), 5); err != nil {
		st.Close()
		return nil, err
	}

	f := facade.New()
	deps := facade.Deps{Store: st, Orchestrator: orch, Bus: bus, Gazetteer: gz, Logger: logger}

	var jobs []scheduler.Job
	for _, j := range cfg.Scheduler.Jobs {
		jobs = append(jobs, scheduler.Job{Spec: j.Spec, TaskType: j.TaskType, Config: j.Config})
	}
	sched, err := scheduler.New(f, deps, logger, jobs)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &process{
		cfg: cfg, logger: logger, store: st, bus: bus, orch: orch,
		gazetteer: gz, scheduler: sched, facade: f, deps: deps,
	}, nil
}

// start launches the orchestrator's boot-time recovery pass and the
// scheduler. Must be called after boot and before serving traffic.
func (p *process) start(ctx context.Context) error {
	if err := p.orch.Start(ctx); err != nil {
		return err
	}
	p.scheduler.Start()
	return nil
}

func (p *process) close() {
	p.scheduler.Stop()
	p.gazetteer.Close()
	p.store.Close()
}
