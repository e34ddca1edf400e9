package planner

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
)

const maxProblemRateForStability = 5.0 // problems/minute tolerated before reactToSignal fires

// GazetteerLookup is the subset of internal/gazetteer.Cache the Planner
// consults for place-hub readiness. Declared here (consumer-defined
// interface) so planner never imports the gazetteer package directly.
type GazetteerLookup interface {
	Readiness(domain string) (status string, reason string)
	CandidateHubs(domain, kind string) []string
}

// Planner produces ordered candidate URL sets for the Frontier. It is
// stateless across jobs except for its pattern template arena and cost
// estimator, both of which are safe for concurrent use by one
// CrawlJobRunner.
type Planner struct {
	flags      FeatureFlags
	templates  *TemplateArena
	estimator  *CostEstimator
	gazetteer  GazetteerLookup
	logger     arbor.ILogger
	maxBranches  int
	maxLookahead int
}

// Option configures a Planner at construction.
type Option func(*Planner)

func WithGazetteer(g GazetteerLookup) Option { return func(p *Planner) { p.gazetteer = g } }
func WithTemplateArena(a *TemplateArena) Option { return func(p *Planner) { p.templates = a } }
func WithLimits(maxBranches, maxLookahead int) Option {
	return func(p *Planner) {
		p.maxBranches = maxBranches
		p.maxLookahead = maxLookahead
	}
}

// New creates a Planner. maxBranches/maxLookahead default to 5/3 if unset
// via WithLimits.
func New(flags FeatureFlags, logger arbor.ILogger, opts ...Option) *Planner {
	p := &Planner{
		flags:        flags,
		templates:    NewTemplateArena(0),
		estimator:    NewCostEstimator(),
		logger:       logger,
		maxBranches:  5,
		maxLookahead: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxLookahead < 1 {
		p.maxLookahead = 1
	}
	if p.maxLookahead > 3 {
		p.maxLookahead = 3
	}
	return p
}

// Estimator exposes the planner's cost estimator so the CrawlJobRunner can
// feed back observed fetch durations after each completed request.
func (p *Planner) Estimator() *CostEstimator { return p.estimator }

// Templates exposes the pattern template arena for inspection/tests.
func (p *Planner) Templates() *TemplateArena { return p.templates }

// GenerateSeedPlan produces the initial candidate set from configured start
// URLs, place-hub candidates (geographic crawls), and topic-hub candidates.
func (p *Planner) GenerateSeedPlan(cfg JobConfig, onStage StageEventFunc) Plan {
	plan := Plan{JobID: cfg.JobID, GeneratedAt: time.Now(), LookaheadDepth: 1}

	for _, raw := range cfg.StartURLs {
		c := Candidate{URL: raw, Host: hostOf(raw), Depth: 0, Source: SourceStartURL, Rationale: "configured start URL"}
		c.EstimatedCostMS = p.estimateCost(c)
		plan.Steps = append(plan.Steps, c)
	}
	report(onStage, "seed", fmt.Sprintf("%d configured start URLs", len(cfg.StartURLs)), 0, "accept")

	if cfg.Geographic && p.gazetteer != nil {
		for _, country := range cfg.Countries {
			status, reason := p.gazetteer.Readiness(country)
			if status != "ready" {
				report(onStage, "seed-place-hub", fmt.Sprintf("%s: %s", country, reason), 0, "skip")
				continue
			}
			for _, hubURL := range p.gazetteer.CandidateHubs(country, "country") {
				c := Candidate{URL: hubURL, Host: hostOf(hubURL), Depth: 1, Source: SourcePlaceHub,
					Rationale: fmt.Sprintf("place-hub candidate for %s", country)}
				c.EstimatedCostMS = p.estimateCost(c)
				plan.Steps = append(plan.Steps, c)
			}
			report(onStage, "seed-place-hub", fmt.Sprintf("%s ready", country), 0, "accept")
		}
	}

	for _, topic := range cfg.TopicHints {
		if len(cfg.StartURLs) == 0 {
			continue
		}
		hubURL := fmt.Sprintf("https://%s/%s", hostOf(cfg.StartURLs[0]), topic)
		c := Candidate{URL: hubURL, Host: hostOf(hubURL), Depth: 1, Source: SourceTopicHub,
			Rationale: fmt.Sprintf("topic hub for %q", topic)}
		c.EstimatedCostMS = p.estimateCost(c)
		plan.Steps = append(plan.Steps, c)
	}

	return plan
}

// ProposeCandidates produces continuation candidates from active pattern
// templates (when PatternDiscovery is on), at most maxBranches of them, at
// the depth lookaheadDepth returns. It proposes no hub-gap candidates; with
// CrossDomainSharing on and a category set it only reports a cross-domain
// stage event and adds no candidates.
func (p *Planner) ProposeCandidates(state JobState, onStage StageEventFunc) Plan {
	plan := Plan{JobID: state.JobID, GeneratedAt: time.Now(), LookaheadDepth: p.lookaheadDepth(state)}

	if p.flags.AllOff() {
		report(onStage, "propose", "all feature flags off, static breadth-first only", 0, "accept")
		return plan
	}

	if p.flags.PatternDiscovery {
		active := p.templates.Active()
		sort.Slice(active, func(i, j int) bool { return active[i].HitRate() > active[j].HitRate() })

		branches := 0
		for _, tmpl := range active {
			if branches >= p.maxBranches {
				break
			}
			candURL := Substitute(tmpl.Template, map[string]string{"host": state.Domain})
			c := Candidate{URL: candURL, Host: state.Domain, Depth: plan.LookaheadDepth, Source: SourcePattern,
				Rationale: fmt.Sprintf("template %q hit-rate %.2f", tmpl.Template, tmpl.HitRate())}
			c.EstimatedCostMS = p.estimateCost(c)
			plan.Steps = append(plan.Steps, c)
			branches++
		}
		report(onStage, "propose-pattern", fmt.Sprintf("%d pattern candidates", branches), 0, "accept")
	}

	if p.flags.CrossDomainSharing && state.Category != "" {
		report(onStage, "propose-cross-domain", fmt.Sprintf("category %q templates considered", state.Category), 0, "accept")
	}

	return plan
}

// ReactToSignal produces a replacement plan when a dynamic re-planning
// trigger fires. Returns (plan, true) if re-planning occurred, or
// (Plan{}, false) if the signal did not cross threshold.
func (p *Planner) ReactToSignal(state JobState, sig Signal, onStage StageEventFunc) (Plan, bool) {
	if !p.flags.DynamicReplanning {
		return Plan{}, false
	}

	triggered := false
	reason := ""
	switch sig.Kind {
	case SignalProblemRate:
		if sig.ProblemRate > maxProblemRateForStability {
			triggered, reason = true, fmt.Sprintf("problem rate %.1f/min exceeds threshold", sig.ProblemRate)
		}
	case SignalHitRateCollapse:
		if sig.PatternHitRate < minHitRate {
			triggered, reason = true, fmt.Sprintf("pattern hit-rate collapsed to %.2f", sig.PatternHitRate)
		}
	case SignalCostDeviation:
		if sig.CostErrorRatio > 0.5 {
			triggered, reason = true, fmt.Sprintf("cost estimate error %.0f%%", sig.CostErrorRatio*100)
		}
	}

	if !triggered {
		return Plan{}, false
	}

	report(onStage, "react", reason, 0, "replan")
	replacement := p.ProposeCandidates(state, onStage)
	return replacement, true
}

// lookaheadDepth returns the depth (up to maxLookahead) with the highest
// weight in the adaptive-branching distribution, using the shallower table
// when the queue is growing faster than it drains (spec §4.5 "Adaptive
// branching"). No depth is sampled and ties go to the shallower depth, so
// with the current tables the result is 1 either way.
func (p *Planner) lookaheadDepth(state JobState) int {
	if !p.flags.AdaptiveBranching {
		return 1
	}
	dist := branchDistribution
	if state.QueueGrowthRate > state.QueueDrainRate {
		dist = shallowDistribution
	}
	best, bestWeight := 1, -1.0
	for depth := 1; depth <= p.maxLookahead; depth++ {
		if w := dist[depth]; w > bestWeight {
			best, bestWeight = depth, w
		}
	}
	return best
}

func (p *Planner) estimateCost(c Candidate) int64 {
	if !p.flags.CostAwarePriority {
		return 0
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return 0
	}
	return p.estimator.Estimate(u.Host, u.Path)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func report(fn StageEventFunc, stage, rationale string, cost int64, decision string) {
	if fn != nil {
		fn(stage, rationale, cost, decision)
	}
}
