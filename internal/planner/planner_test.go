package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeGazetteer struct {
	ready map[string]bool
	hubs  map[string][]string
}

func (f *fakeGazetteer) Readiness(domain string) (string, string) {
	if f.ready[domain] {
		return "ready", "verified hub count sufficient"
	}
	return "insufficient", "no verified hubs yet"
}

func (f *fakeGazetteer) CandidateHubs(domain, kind string) []string {
	return f.hubs[domain]
}

func TestGenerateSeedPlanIncludesStartURLs(t *testing.T) {
	p := New(FeatureFlags{}, arbor.NewLogger())
	plan := p.GenerateSeedPlan(JobConfig{
		JobID:     "job-1",
		StartURLs: []string{"https://news.example.com/"},
	}, nil)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, SourceStartURL, plan.Steps[0].Source)
}

func TestGenerateSeedPlanSkipsUnreadyGeography(t *testing.T) {
	gz := &fakeGazetteer{ready: map[string]bool{"france": false}}
	p := New(FeatureFlags{}, arbor.NewLogger(), WithGazetteer(gz))

	var decisions []string
	plan := p.GenerateSeedPlan(JobConfig{
		JobID:      "job-1",
		Geographic: true,
		Countries:  []string{"france"},
	}, func(stage, rationale string, cost int64, decision string) {
		decisions = append(decisions, decision)
	})

	assert.Empty(t, plan.Steps)
	assert.Contains(t, decisions, "skip")
}

func TestGenerateSeedPlanIncludesReadyPlaceHubs(t *testing.T) {
	gz := &fakeGazetteer{
		ready: map[string]bool{"france": true},
		hubs:  map[string][]string{"france": {"https://news.example.com/world/france"}},
	}
	p := New(FeatureFlags{}, arbor.NewLogger(), WithGazetteer(gz))

	plan := p.GenerateSeedPlan(JobConfig{
		JobID:      "job-1",
		Geographic: true,
		Countries:  []string{"france"},
	}, nil)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, SourcePlaceHub, plan.Steps[0].Source)
	assert.Equal(t, "https://news.example.com/world/france", plan.Steps[0].URL)
}

func TestProposeCandidatesAllFlagsOffIsStatic(t *testing.T) {
	p := New(FeatureFlags{}, arbor.NewLogger())
	plan := p.ProposeCandidates(JobState{JobID: "job-1", Domain: "example.com"}, nil)
	assert.Empty(t, plan.Steps)
}

func TestProposeCandidatesUsesActiveTemplates(t *testing.T) {
	p := New(FeatureFlags{PatternDiscovery: true}, arbor.NewLogger())
	p.Templates().Observe("https://{host}/world/{country}", true)
	p.Templates().Observe("https://{host}/world/{country}", true)

	plan := p.ProposeCandidates(JobState{JobID: "job-1", Domain: "example.com"}, nil)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, SourcePattern, plan.Steps[0].Source)
}

func TestProposeCandidatesRespectsMaxBranches(t *testing.T) {
	p := New(FeatureFlags{PatternDiscovery: true}, arbor.NewLogger(), WithLimits(1, 3))
	p.Templates().Observe("https://{host}/a", true)
	p.Templates().Observe("https://{host}/b", true)

	plan := p.ProposeCandidates(JobState{JobID: "job-1", Domain: "example.com"}, nil)
	assert.Len(t, plan.Steps, 1)
}

func TestReactToSignalRequiresDynamicReplanningFlag(t *testing.T) {
	p := New(FeatureFlags{}, arbor.NewLogger())
	_, replanned := p.ReactToSignal(JobState{}, Signal{Kind: SignalProblemRate, ProblemRate: 100}, nil)
	assert.False(t, replanned)
}

func TestReactToSignalTriggersOnProblemRate(t *testing.T) {
	p := New(FeatureFlags{DynamicReplanning: true}, arbor.NewLogger())
	_, replanned := p.ReactToSignal(JobState{}, Signal{Kind: SignalProblemRate, ProblemRate: 10}, nil)
	assert.True(t, replanned)
}

func TestReactToSignalTriggersOnCostDeviation(t *testing.T) {
	p := New(FeatureFlags{DynamicReplanning: true}, arbor.NewLogger())
	_, replanned := p.ReactToSignal(JobState{}, Signal{Kind: SignalCostDeviation, CostErrorRatio: 0.6}, nil)
	assert.True(t, replanned)
}

func TestReactToSignalIgnoresBelowThreshold(t *testing.T) {
	p := New(FeatureFlags{DynamicReplanning: true}, arbor.NewLogger())
	_, replanned := p.ReactToSignal(JobState{}, Signal{Kind: SignalProblemRate, ProblemRate: 1}, nil)
	assert.False(t, replanned)
}

func TestAdaptiveBranchingShiftsShallowerWhenQueueGrowing(t *testing.T) {
	p := New(FeatureFlags{AdaptiveBranching: true}, arbor.NewLogger())
	depth := p.lookaheadDepth(JobState{QueueGrowthRate: 10, QueueDrainRate: 1})
	assert.Equal(t, 1, depth)
}

func TestTemplateArenaEvictsLRUBeyondCapacity(t *testing.T) {
	a := NewTemplateArena(2)
	a.Observe("t1", true)
	a.Observe("t2", true)
	a.Observe("t3", true) // evicts t1

	active := a.Active()
	var templates []string
	for _, t := range active {
		templates = append(templates, t.Template)
	}
	assert.NotContains(t, templates, "t1")
	assert.Contains(t, templates, "t3")
	assert.Equal(t, 2, a.Len())
}

func TestTemplateArenaRetiresLowHitRate(t *testing.T) {
	a := NewTemplateArena(10)
	a.Observe("bad", true)
	for i := 0; i < 20; i++ {
		a.Observe("bad", false)
	}
	active := a.Active()
	for _, tmpl := range active {
		assert.NotEqual(t, "bad", tmpl.Template)
	}
}

func TestCostEstimatorDeviationDetection(t *testing.T) {
	e := NewCostEstimator()
	e.Record("example.com", "/a/1", 100)
	e.Record("example.com", "/a/2", 100)

	deviated, ratio := e.Record("example.com", "/a/3", 500)
	assert.True(t, deviated)
	assert.Greater(t, ratio, 0.5)
}

func TestCostEstimatorP95Recent(t *testing.T) {
	e := NewCostEstimator()
	for i := 1; i <= 20; i++ {
		e.Record("example.com", "/x/1", int64(i*10))
	}
	p95 := e.P95Recent()
	assert.Greater(t, p95, int64(150))
}
