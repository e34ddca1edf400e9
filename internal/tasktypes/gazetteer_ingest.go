package tasktypes

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/orcaweaver/internal/gazetteer"
	"github.com/ternarybob/orcaweaver/internal/orchestrator"
)

// GazetteerIngestTaskType is the registered name for the gazetteer
// ingestion background task.
const GazetteerIngestTaskType = "gazetteer-ingestion"

// GazetteerSource is the out-of-scope external collaborator spec.md §1
// names: "gazetteer data sources (Wikidata/OSM/REST)". The task type
// depends only on this narrow interface so the real data-source client can
// be swapped (or faked in tests) without touching orchestration code.
type GazetteerSource interface {
	// Fetch returns the current verified/candidate hub counts and
	// candidate hub URLs for one domain at the given granularity.
	Fetch(ctx context.Context, domain string, kind gazetteer.Kind) (verifiedHubs, candidateCount int, candidateHubs []string, err error)
}

// GazetteerIngestConfig is the JSON shape of a gazetteer-ingestion task's
// config column.
type GazetteerIngestConfig struct {
	Domains []string        `json:"domains"`
	Kind    gazetteer.Kind  `json:"kind"`
}

// GazetteerIngestStats is written to the task's metadata column as
// ingestion progresses.
type GazetteerIngestStats struct {
	Stage           string `json:"stage"`
	DomainsIngested int    `json:"domains_ingested"`
}

// NewGazetteerIngestConstructor builds the ConstructorFunc registered under
// GazetteerIngestTaskType: for each configured domain it fetches fresh
// signal data from source and upserts it into cache, feeding the Planner's
// place-hub readiness judgments (spec.md §4.5, §9 "gazetteer data sources").
func NewGazetteerIngestConstructor(source GazetteerSource, cache *gazetteer.Cache) orchestrator.ConstructorFunc {
	return orchestrator.RunFunc(func(ctx context.Context, deps orchestrator.TaskDeps) error {
		var cfg GazetteerIngestConfig
		if err := json.Unmarshal(deps.Config, &cfg); err != nil {
			return err
		}
		if cfg.Kind == "" {
			cfg.Kind = gazetteer.KindCountry
		}

		total := int64(len(cfg.Domains))
		stats := GazetteerIngestStats{Stage: "ingesting"}

		for i, domain := range cfg.Domains {
			select {
			case <-deps.Cancel:
				return nil
			default:
			}

			verified, candidates, hubs, err := source.Fetch(ctx, domain, cfg.Kind)
			if err != nil {
				return err
			}

			if err := cache.Put(&gazetteer.Signal{
				Domain: domain, Kind: cfg.Kind,
				VerifiedHubCount: verified, CandidateCount: candidates, CandidateHubs: hubs,
			}); err != nil {
				return err
			}

			stats.DomainsIngested = i + 1
			metadata, _ := json.Marshal(stats)
			deps.Progress(int64(i+1), total, "ingested "+domain, metadata)
		}

		stats.Stage = "done"
		metadata, _ := json.Marshal(stats)
		deps.Progress(total, total, "gazetteer ingestion complete", metadata)
		return nil
	})
}
