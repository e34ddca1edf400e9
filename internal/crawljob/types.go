// Package crawljob supervises an external crawl worker process, translating
// its line-oriented structured stdout protocol (PROGRESS, QUEUE, PROBLEM,
// MILESTONE, PLANNER_STAGE, ERROR, CACHE) into TaskStore mutations and
// EventBus publications, and enforcing the silence/stall watchdogs.
//
// Grounded on the teacher's os/exec usage in
// internal/queue/workers/github_git_worker.go (spawn, pipe stdout, parse
// line-by-line) and internal/jobs/worker/crawler_worker.go's job-state
// mutation idiom, generalized to the out-of-process worker contract
// SPEC_FULL.md §4.10 describes.
package crawljob

import (
	"encoding/json"
	"time"
)

// RecordKind is the line prefix that selects a structured-output handler.
type RecordKind string

const (
	RecordProgress     RecordKind = "PROGRESS"
	RecordQueue        RecordKind = "QUEUE"
	RecordProblem      RecordKind = "PROBLEM"
	RecordMilestone    RecordKind = "MILESTONE"
	RecordPlannerStage RecordKind = "PLANNER_STAGE"
	RecordError        RecordKind = "ERROR"
	RecordCache        RecordKind = "CACHE"
)

// ProgressRecord is the payload of a PROGRESS line.
type ProgressRecord struct {
	Current int64  `json:"current"`
	Total   int64  `json:"total"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// QueueRecord is the payload of a QUEUE line.
type QueueRecord struct {
	Action      string `json:"action"` // enqueue | dequeue | skip
	URL         string `json:"url"`
	Depth       int    `json:"depth"`
	Host        string `json:"host"`
	Reason      string `json:"reason"`
	QueueSize   int    `json:"queue_size"`
	Role        string `json:"role"`
	DepthBucket string `json:"depth_bucket"`
}

// ProblemRecord is the payload of a PROBLEM line.
type ProblemRecord struct {
	Kind    string          `json:"kind"`
	Scope   string          `json:"scope"`
	Target  string          `json:"target"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// MilestoneRecord is the payload of a MILESTONE line.
type MilestoneRecord struct {
	Kind    string          `json:"kind"`
	Scope   string          `json:"scope"`
	Target  string          `json:"target"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// PlannerStageRecord is the payload of a PLANNER_STAGE line.
type PlannerStageRecord struct {
	Stage           string `json:"stage"`
	Rationale       string `json:"rationale"`
	EstimatedCostMS int64  `json:"estimated_cost_ms"`
	Decision        string `json:"decision"`
}

// ErrorRecord is the payload of an ERROR line.
type ErrorRecord struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// CacheRecord is the payload of an advisory CACHE diagnostic line.
type CacheRecord struct {
	Hit   bool   `json:"hit"`
	Key   string `json:"key"`
	Notes string `json:"notes"`
}

// Record is one parsed line of the worker's structured output.
type Record struct {
	Kind RecordKind
	Raw  json.RawMessage
}

// Options configures a Runner for one crawl job.
type Options struct {
	JobID           string
	DBPath          string
	URL             string
	Args            []string
	BinaryPath      string
	SpawnTimeout    time.Duration
	SilenceTimeout  time.Duration
	StallTimeout    time.Duration
	ExitGrace       time.Duration
	WatchdogTick    time.Duration
}

// Summary is the final aggregate the Runner reports when the worker exits,
// carried on the task-completed event per spec §4.4 "Exit handling".
type Summary struct {
	Success         bool
	ExitCode        int
	FinalCurrent    int64
	FinalTotal      int64
	FinalStage      string
	ErrorMessage    string
	PagesVisited    int
	ProblemsRaised  int
	MilestonesHit   int
}
