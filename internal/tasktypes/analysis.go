package tasktypes

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/orcaweaver/internal/orchestrator"
	"github.com/ternarybob/orcaweaver/internal/store"
)

// AnalysisTaskType is the registered name for the telemetry-analysis
// background task: it summarizes problems/milestones already recorded for
// a set of prior (typically completed) crawl jobs, rather than fetching
// anything itself.
const AnalysisTaskType = "analysis"

// AnalysisConfig is the JSON shape of an analysis task's config column.
type AnalysisConfig struct {
	TaskIDs []string `json:"task_ids"`
}

// AnalysisSummary is one source task's aggregated telemetry.
type AnalysisSummary struct {
	TaskID         string         `json:"task_id"`
	ProblemCounts  map[string]int `json:"problem_counts"`
	MilestoneCount int            `json:"milestone_count"`
}

// AnalysisResult is written to the task's metadata column as analysis
// progresses and on completion.
type AnalysisResult struct {
	Stage     string            `json:"stage"`
	Summaries []AnalysisSummary `json:"summaries"`
}

// NewAnalysisConstructor builds the ConstructorFunc registered under
// AnalysisTaskType. Grounded on the teacher's internal/jobs/worker
// run-function idiom, generalized here to walk a store-backed telemetry
// read instead of a live crawl.
func NewAnalysisConstructor(st *store.Store) orchestrator.ConstructorFunc {
	return orchestrator.RunFunc(func(ctx context.Context, deps orchestrator.TaskDeps) error {
		var cfg AnalysisConfig
		if err := json.Unmarshal(deps.Config, &cfg); err != nil {
			return err
		}

		total := int64(len(cfg.TaskIDs))
		result := AnalysisResult{Stage: "analyzing"}

		for i, taskID := range cfg.TaskIDs {
			select {
			case <-deps.Cancel:
				return nil
			default:
			}

			problems, err := st.ListProblems(ctx, taskID, 0)
			if err != nil {
				return err
			}
			milestones, err := st.ListMilestones(ctx, taskID, 0)
			if err != nil {
				return err
			}

			counts := make(map[string]int)
			for _, p := range problems {
				counts[p.Kind]++
			}
			result.Summaries = append(result.Summaries, AnalysisSummary{
				TaskID: taskID, ProblemCounts: counts, MilestoneCount: len(milestones),
			})

			metadata, _ := json.Marshal(result)
			deps.Progress(int64(i+1), total, "analyzed "+taskID, metadata)
		}

		result.Stage = "done"
		metadata, _ := json.Marshal(result)
		deps.Progress(total, total, "analysis complete", metadata)
		return nil
	})
}
