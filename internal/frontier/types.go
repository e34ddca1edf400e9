// Package frontier implements the per-crawl-job priority queue of URLs to
// fetch, with host fairness and cost-aware re-scoring.
//
// Grounded on the teacher's internal/services/crawler.URLQueue
// (container/heap over a *URLQueueItem slice, sync.Cond-based blocking Pop,
// normalizeURL dedup): this package keeps that structure and generalizes it
// with host-fairness token counting, idempotent priority-monotonic
// re-enqueue, and the cost-aware re-scoring the original queue never did.
package frontier

import "time"

// Source tags where a FrontierEntry's URL came from.
type Source string

const (
	SourceSeed       Source = "seed"
	SourceAdaptive   Source = "adaptive-seed"
	SourcePattern    Source = "pattern"
	SourceDiscovered Source = "discovered"
)

// Entry is a pending URL with its scheduling metadata. At most one Entry per
// (job, URL) exists in a Frontier at a time (IP4).
type Entry struct {
	URL             string
	Host            string
	Depth           int
	Priority        float64
	Source          Source
	EstimatedCostMS int64
	AddedAt         time.Time

	insertionSeq uint64
	heapIndex    int
}

// QueueEventFunc is invoked for every enqueue/dequeue/skip so the caller
// (CrawlJobRunner) can append it as frontier telemetry and publish it on the
// event bus. The Frontier itself has no store or bus dependency.
type QueueEventFunc func(action, url string, depth int, host, reason string, queueSize int)
