package planner

// FeatureFlags holds the six independent Planner toggles from spec §4.5.
// When all are false the Planner falls back to static seed + breadth-first
// expansion.
type FeatureFlags struct {
	CostAwarePriority  bool
	PatternDiscovery   bool
	AdaptiveBranching  bool
	RealTimeAdjustment bool
	DynamicReplanning  bool
	CrossDomainSharing bool
}

// AllOff reports whether every flag is disabled.
func (f FeatureFlags) AllOff() bool {
	return !f.CostAwarePriority && !f.PatternDiscovery && !f.AdaptiveBranching &&
		!f.RealTimeAdjustment && !f.DynamicReplanning && !f.CrossDomainSharing
}

// branchDistribution is the default adaptive-branching depth distribution
// from spec §4.5: 40% depth-1, 40% depth-2, 20% depth-3.
var branchDistribution = map[int]float64{1: 0.4, 2: 0.4, 3: 0.2}

// shallowDistribution is used when the queue is growing faster than it
// drains, shifting weight toward shallower depths.
var shallowDistribution = map[int]float64{1: 0.7, 2: 0.25, 3: 0.05}
