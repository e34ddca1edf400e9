// Package tasktypes holds the in-process background TaskTypeRegistrations
// named in spec.md §1 ("background tasks that process already-stored
// data: compression, analysis, gazetteer ingestion, place-hub guessing").
// Per DESIGN.md's Open Question resolution, every type registered here runs
// as a cooperative in-process routine through the shared TaskOrchestrator;
// only crawl jobs spawn an external worker (internal/crawljob).
//
// Grounded on the teacher's internal/jobs/worker package's run-function
// idiom (a plain func(ctx, deps) error observing a cancel signal and
// reporting progress), adapted here onto orchestrator.RunFunc instead of
// the teacher's bespoke worker struct per task type.
package tasktypes

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/orcaweaver/internal/orchestrator"
)

// CompressionTaskType is the registered name for the HTML-compression
// sweep background task.
const CompressionTaskType = "compression"

// Compressor is the out-of-scope external collaborator spec.md §1 names:
// "HTML compression (a black-box routine taking a byte buffer and
// returning a shorter byte buffer)". The task type only depends on this
// narrow interface so the real compression routine can be swapped without
// touching orchestration code.
type Compressor interface {
	Compress(content []byte) ([]byte, error)
}

// CompressionConfig is the JSON shape of a compression task's config
// column: the raw content items to compress, identified by an opaque
// reference string (e.g. a stored-document id).
type CompressionConfig struct {
	Items []CompressionItem `json:"items"`
}

// CompressionItem is one piece of already-stored content to compress.
type CompressionItem struct {
	Ref     string `json:"ref"`
	Content string `json:"content"`
}

// CompressionStats is written to the task's metadata column as the
// compression sweep progresses.
type CompressionStats struct {
	Stage           string `json:"stage"`
	ItemsProcessed  int    `json:"items_processed"`
	OriginalBytes   int    `json:"original_bytes"`
	CompressedBytes int    `json:"compressed_bytes"`
}

// NewCompressionConstructor builds the ConstructorFunc registered under
// CompressionTaskType. It walks the configured items in order, invoking the
// injected Compressor on each and checking deps.Cancel between items so a
// caller-requested cancellation is honored at the spec's §5 "natural batch
// boundary" for this task type.
func NewCompressionConstructor(compressor Compressor) orchestrator.ConstructorFunc {
	return orchestrator.RunFunc(func(ctx context.Context, deps orchestrator.TaskDeps) error {
		var cfg CompressionConfig
		if err := json.Unmarshal(deps.Config, &cfg); err != nil {
			return err
		}

		total := int64(len(cfg.Items))
		stats := CompressionStats{Stage: "compressing"}

		for i, item := range cfg.Items {
			select {
			case <-deps.Cancel:
				return nil
			default:
			}

			out, err := compressor.Compress([]byte(item.Content))
			if err != nil {
				stats.Stage = "compression-error"
				metadata, _ := json.Marshal(stats)
				deps.Progress(int64(i), total, "failed to compress "+item.Ref, metadata)
				return err
			}

			stats.ItemsProcessed = i + 1
			stats.OriginalBytes += len(item.Content)
			stats.CompressedBytes += len(out)

			metadata, _ := json.Marshal(stats)
			deps.Progress(int64(i+1), total, "compressed "+item.Ref, metadata)
		}

		stats.Stage = "done"
		metadata, _ := json.Marshal(stats)
		deps.Progress(total, total, "compression sweep complete", metadata)
		return nil
	})
}
