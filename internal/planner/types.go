// Package planner produces ordered candidate URL sets for the Frontier:
// initial seed plans, continuation candidates from observed patterns, and
// reactive re-plans triggered by problem signals.
//
// Grounded on the teacher's internal/services/crawler planning helpers
// (seed construction in service.go's crawl-start path) and generalized into
// a standalone component per spec §4.5, since the teacher itself never
// separated planning from the crawl service.
package planner

import "time"

// CandidateSource mirrors frontier.Source for the candidates a Plan proposes.
type CandidateSource string

const (
	SourceStartURL  CandidateSource = "start-url"
	SourcePlaceHub  CandidateSource = "place-hub"
	SourceTopicHub  CandidateSource = "topic-hub"
	SourcePattern   CandidateSource = "pattern"
	SourceHubGap    CandidateSource = "hub-gap"
	SourceCrossDom  CandidateSource = "cross-domain"
)

// Candidate is one proposed URL with its scheduling metadata and the
// rationale a PLANNER_STAGE event should carry.
type Candidate struct {
	URL             string
	Host            string
	Depth           int
	EstimatedCostMS int64
	Source          CandidateSource
	Rationale       string
}

// Plan is a time-budgeted, advisory sequence of candidates. The Frontier
// may skip steps whose URLs have since been resolved and a later Plan may
// supersede an earlier one (dynamic re-planning).
type Plan struct {
	JobID          string
	Steps          []Candidate
	GeneratedAt    time.Time
	LookaheadDepth int
}

// JobConfig is the subset of crawl job configuration the Planner consults to
// build a seed plan.
type JobConfig struct {
	JobID      string
	StartURLs  []string
	Geographic bool
	Countries  []string
	TopicHints []string
}

// JobState is the subset of live crawl state the Planner consults for
// continuation candidates and reactive re-planning.
type JobState struct {
	JobID           string
	QueueSize       int
	QueueDrainRate  float64 // items/sec, 0 if unknown
	QueueGrowthRate float64 // items/sec, 0 if unknown
	RecentHubs      []string
	Domain          string
	Category        string
}

// Signal is a re-planning trigger observed by the CrawlJobRunner.
type Signal struct {
	Kind            SignalKind
	ProblemRate     float64 // problems per minute, for SignalProblemRate
	PatternHitRate  float64 // for SignalHitRateCollapse
	CostErrorRatio  float64 // |actual-estimated|/estimated, for SignalCostDeviation
}

type SignalKind string

const (
	SignalProblemRate     SignalKind = "problem-rate"
	SignalHitRateCollapse SignalKind = "hit-rate-collapse"
	SignalCostDeviation   SignalKind = "cost-deviation"
)

// StageEventFunc reports a PLANNER_STAGE event as the planner reasons
// through a stage; the caller (CrawlJobRunner) owns persistence/bus wiring.
type StageEventFunc func(stage, rationale string, estimatedCostMS int64, decision string)
