// Package config loads the single configuration document that governs a
// process boot: feature flags, concurrency caps, watchdog timeouts, and
// storage paths. Configuration is read once at boot; there is no hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration document for the orchestration process.
type Config struct {
	Environment  string             `toml:"environment"`
	Server       ServerConfig       `toml:"server"`
	Store        StoreConfig        `toml:"store"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Planner      PlannerConfig      `toml:"planner"`
	Gazetteer    GazetteerConfig    `toml:"gazetteer"`
	Scheduler    SchedulerConfig    `toml:"scheduler"`
	Logging      LoggingConfig      `toml:"logging"`
	Worker       WorkerConfig       `toml:"worker"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig configures the durable TaskStore.
type StoreConfig struct {
	Path            string `toml:"path"`
	BusyTimeoutMS   int    `toml:"busy_timeout_ms"`
	MaxRetries      int    `toml:"max_retries"`
	RetryInitialMS  int    `toml:"retry_initial_ms"`
	ResetOnStartup  bool   `toml:"reset_on_startup"`
}

// OrchestratorConfig configures lifecycle and concurrency behavior.
type OrchestratorConfig struct {
	MaxConcurrentCrawlJobs   int `toml:"max_concurrent_crawl_jobs"`
	MaxConcurrentBackground  int `toml:"max_concurrent_background_tasks"`
	StuckResumingTimeoutMS   int `toml:"stuck_resuming_timeout_ms"`
	ProgressCoalesceMS       int `toml:"progress_coalesce_ms"`
	CancelGraceSeconds       int `toml:"cancel_grace_seconds"`
}

// PlannerConfig toggles the six independent Planner feature flags plus
// branching bounds.
type PlannerConfig struct {
	CostAwarePriority   bool `toml:"cost_aware_priority"`
	PatternDiscovery    bool `toml:"pattern_discovery"`
	AdaptiveBranching   bool `toml:"adaptive_branching"`
	RealTimeAdjustment  bool `toml:"real_time_adjustment"`
	DynamicReplanning   bool `toml:"dynamic_replanning"`
	CrossDomainSharing  bool `toml:"cross_domain_sharing"`
	MaxBranches         int  `toml:"max_branches"`
	MaxLookahead        int  `toml:"max_lookahead"`
	TemplateArenaSize   int  `toml:"template_arena_size"`
	HostFairnessPenalty float64 `toml:"host_fairness_penalty"`
	HostFairnessWindowS int     `toml:"host_fairness_window_seconds"`
}

// GazetteerConfig configures the bounded place-hub signal cache and the
// upstream gazetteer data source the ingestion task polls.
type GazetteerConfig struct {
	Path      string `toml:"path"`
	CacheSize int    `toml:"cache_size"`
	SourceURL string `toml:"source_url"`
}

// SchedulerConfig configures recurring background-task submission.
type SchedulerConfig struct {
	Jobs []ScheduledJob `toml:"jobs"`
}

// ScheduledJob binds a cron spec to a background task type + config.
type ScheduledJob struct {
	Spec     string                 `toml:"spec"`
	TaskType string                 `toml:"task_type"`
	Config   map[string]interface{} `toml:"config"`
}

// LoggingConfig configures arbor's multi-writer logging.
type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// WorkerConfig configures the external crawl worker process.
type WorkerConfig struct {
	BinaryPath        string `toml:"binary_path"`
	SpawnTimeoutMS    int    `toml:"spawn_timeout_ms"`
	SilenceTimeoutMS  int    `toml:"silence_timeout_ms"`
	StallTimeoutMS    int    `toml:"stall_timeout_ms"`
	ExitGraceSeconds  int    `toml:"exit_grace_seconds"`
}

// NewDefaultConfig returns the baseline configuration before any file, env,
// or CLI overrides are applied.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Store: StoreConfig{
			Path:           "./data/orcaweaver.db",
			BusyTimeoutMS:  5000,
			MaxRetries:     5,
			RetryInitialMS: 50,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrentCrawlJobs:  2,
			MaxConcurrentBackground: 4,
			StuckResumingTimeoutMS:  4000,
			ProgressCoalesceMS:      100,
			CancelGraceSeconds:      5,
		},
		Planner: PlannerConfig{
			CostAwarePriority:   true,
			PatternDiscovery:    true,
			AdaptiveBranching:   true,
			RealTimeAdjustment:  true,
			DynamicReplanning:   true,
			CrossDomainSharing:  true,
			MaxBranches:         8,
			MaxLookahead:        3,
			TemplateArenaSize:   512,
			HostFairnessPenalty: 0.3,
			HostFairnessWindowS: 60,
		},
		Gazetteer: GazetteerConfig{
			Path:      "./data/gazetteer",
			CacheSize: 2048,
			SourceURL: "https://gazetteer.internal/v1/signal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
		},
		Worker: WorkerConfig{
			BinaryPath:       "./bin/crawlworker",
			SpawnTimeoutMS:   10_000,
			SilenceTimeoutMS: 120_000,
			StallTimeoutMS:   300_000,
			ExitGraceSeconds: 5,
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2
// -> ... -> env -> CLI (CLI overrides are applied separately by the caller
// via ApplyFlagOverrides, since flag values are only known in cmd/ packages).
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if env := os.Getenv("ORCA_ENV"); env != "" {
		cfg.Environment = env
	}
	if port := os.Getenv("ORCA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("ORCA_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if path := os.Getenv("ORCA_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if n := os.Getenv("ORCA_MAX_CRAWL_JOBS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Orchestrator.MaxConcurrentCrawlJobs = v
		}
	}
	if n := os.Getenv("ORCA_MAX_BACKGROUND_TASKS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Orchestrator.MaxConcurrentBackground = v
		}
	}
	if level := os.Getenv("ORCA_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// ApplyFlagOverrides applies the highest-priority CLI flag overrides.
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
}

// StuckResumingTimeout returns the configured stuck-resuming watchdog window.
func (c *Config) StuckResumingTimeout() time.Duration {
	return time.Duration(c.Orchestrator.StuckResumingTimeoutMS) * time.Millisecond
}

// ProgressCoalesceWindow returns the configured progress-event coalescing window.
func (c *Config) ProgressCoalesceWindow() time.Duration {
	return time.Duration(c.Orchestrator.ProgressCoalesceMS) * time.Millisecond
}

// CancelGrace returns the configured cancellation grace period.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.Orchestrator.CancelGraceSeconds) * time.Second
}

// SilenceTimeout returns the external worker silence-watchdog threshold.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.Worker.SilenceTimeoutMS) * time.Millisecond
}

// StallTimeout returns the external worker progress-stall threshold.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Worker.StallTimeoutMS) * time.Millisecond
}

// SpawnTimeout returns how long the runner waits for first output before
// emitting a slow-start problem.
func (c *Config) SpawnTimeout() time.Duration {
	return time.Duration(c.Worker.SpawnTimeoutMS) * time.Millisecond
}

// ExitGrace returns how long a worker has to exit after a stop signal
// before being force-terminated.
func (c *Config) ExitGrace() time.Duration {
	return time.Duration(c.Worker.ExitGraceSeconds) * time.Second
}
