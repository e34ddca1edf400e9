package frontier

import (
	"container/heap"
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHostFairnessWindow = 60 * time.Second
	defaultHostFairnessBurst  = 20
)

// ScorerConfig controls cost-aware re-scoring on enqueue (spec §4.3,
// "Cost-awareness"). When Enabled is false entries keep their base priority.
type ScorerConfig struct {
	Enabled     bool
	P95RecentMS int64
}

// Frontier is the priority queue of URLs to fetch for one crawl job. It is
// owned by the CrawlJobRunner for the job's lifetime and discarded on
// terminal status.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	items  entryHeap
	byURL  map[string]*Entry
	nextID uint64
	closed bool

	hostLimiters        map[string]*rate.Limiter
	hostFairnessWindow  time.Duration
	hostFairnessBurst   int
	hostFairnessPenalty float64

	scorer ScorerConfig
	onEvent QueueEventFunc
}

// Option configures a Frontier at construction.
type Option func(*Frontier)

// WithScorer enables cost-aware re-scoring per spec §4.3.
func WithScorer(cfg ScorerConfig) Option {
	return func(f *Frontier) { f.scorer = cfg }
}

// WithHostFairness sets the sliding window over which recent fetches per
// host are counted, and stores a penalty value. The penalty is not applied
// to any priority: recent fetches only order entries of equal priority,
// the host with fewer recent fetches first.
func WithHostFairness(window time.Duration, penalty float64) Option {
	return func(f *Frontier) {
		f.hostFairnessWindow = window
		f.hostFairnessPenalty = penalty
	}
}

// WithEventSink registers the callback invoked for every queue-event.
func WithEventSink(fn QueueEventFunc) Option {
	return func(f *Frontier) { f.onEvent = fn }
}

// New creates an empty Frontier.
func New(opts ...Option) *Frontier {
	f := &Frontier{
		byURL:               make(map[string]*Entry),
		hostLimiters:        make(map[string]*rate.Limiter),
		hostFairnessWindow:  defaultHostFairnessWindow,
		hostFairnessBurst:   defaultHostFairnessBurst,
		hostFairnessPenalty: 0.3,
	}
	f.items = entryHeap{hostTokens: make(map[string]float64)}
	heap.Init(&f.items)
	f.cond = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enqueue inserts entry if its URL is absent, or raises the existing
// entry's priority to max(old, new) if present (priority-monotonic
// re-enqueue per the FrontierEntry invariant). Returns true if the entry is
// new or was raised.
func (f *Frontier) Enqueue(e Entry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}

	key := normalizeURL(e.URL)
	e.Priority = f.scoredPriority(e)

	if existing, ok := f.byURL[key]; ok {
		if e.Priority <= existing.Priority {
			f.emit("enqueue", e.URL, e.Depth, e.Host, "duplicate-no-raise", f.items.Len())
			return false
		}
		existing.Priority = e.Priority
		heap.Fix(&f.items, existing.heapIndex)
		f.emit("enqueue", e.URL, e.Depth, e.Host, "priority-raised", f.items.Len())
		f.cond.Signal()
		return true
	}

	f.nextID++
	e.insertionSeq = f.nextID
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	stored := e
	f.byURL[key] = &stored
	heap.Push(&f.items, &stored)
	f.emit("enqueue", e.URL, e.Depth, e.Host, string(e.Source), f.items.Len())
	f.cond.Signal()
	return true
}

// Dequeue pops the highest-priority entry respecting host fairness,
// blocking until one is available, ctx is cancelled, or the Frontier is
// closed. Returns (nil, nil) on close, mirroring the teacher's URLQueue.Pop
// contract of returning a nil item rather than an error when drained.
func (f *Frontier) Dequeue(ctx context.Context) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const maxWait = 10 * time.Second
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if f.closed {
			return nil, nil
		}

		if f.items.Len() > 0 {
			e := heap.Pop(&f.items).(*Entry)
			delete(f.byURL, normalizeURL(e.URL))
			f.recordFetch(e.Host)
			f.emit("dequeue", e.URL, e.Depth, e.Host, "", f.items.Len())
			return e, nil
		}

		timer := time.AfterFunc(maxWait, func() { f.cond.Broadcast() })
		f.cond.Wait()
		timer.Stop()
	}
}

// Skip records a queue-event of kind skip without enqueueing, used by the
// planner when a candidate URL is filtered out before ever reaching the
// queue.
func (f *Frontier) Skip(rawURL, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emit("skip", rawURL, 0, hostOf(rawURL), reason, f.items.Len())
}

// Size returns the number of entries currently queued.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Len()
}

// Snapshot returns up to limit queued entries in current heap order (not
// necessarily dequeue order beyond the top element) for diagnostics/UI.
// limit <= 0 returns all entries.
func (f *Frontier) Snapshot(limit int) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.items.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = *f.items.items[i]
	}
	return out
}

// Close stops the Frontier, waking all blocked Dequeue callers. A closed
// Frontier rejects further Enqueue calls. Matches the per-job discard rule:
// once a crawl job reaches a terminal status, its Frontier is closed.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

func (f *Frontier) emit(action, rawURL string, depth int, host, reason string, size int) {
	if f.onEvent != nil {
		f.onEvent(action, rawURL, depth, host, reason, size)
	}
}

// recordFetch charges one token against host's fairness limiter; the heap
// uses the resulting recent-fetch count to place an over-fetched host's
// entries after other entries of equal priority. Priority values themselves
// are left unchanged.
// Each host gets its own token bucket (burst hostFairnessBurst, refilling
// to full over hostFairnessWindow); consumed tokens decay back to zero on
// their own as the bucket refills, replacing a hand-pruned timestamp slice
// with the same golang.org/x/time/rate limiter the teacher uses for
// per-key throttling elsewhere (internal/handlers/websocket_events.go's
// throttlers map, internal/services/navexa and internal/eodhd's outbound
// pacing).
func (f *Frontier) recordFetch(host string) {
	if host == "" {
		return
	}
	lim, ok := f.hostLimiters[host]
	if !ok {
		refillRate := rate.Limit(float64(f.hostFairnessBurst) / f.hostFairnessWindow.Seconds())
		lim = rate.NewLimiter(refillRate, f.hostFairnessBurst)
		f.hostLimiters[host] = lim
	}
	lim.Allow()
	f.items.hostTokens[host] = float64(f.hostFairnessBurst) - lim.Tokens()
	// Token counts feed heap ordering via Less but changing them doesn't
	// itself preserve the heap invariant; re-establish it so the next Pop
	// reflects the new host-fairness standing immediately.
	heap.Init(&f.items)
}

// scoredPriority applies the cost-aware re-scoring formula from spec §4.3:
// final = base × (1 + clamp(1 − est_ms/P95, 0, 0.3)).
func (f *Frontier) scoredPriority(e Entry) float64 {
	if !f.scorer.Enabled || e.EstimatedCostMS <= 0 || f.scorer.P95RecentMS <= 0 {
		return e.Priority
	}
	ratio := 1 - float64(e.EstimatedCostMS)/float64(f.scorer.P95RecentMS)
	boost := clamp(ratio, 0, 0.3)
	return e.Priority * (1 + boost)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// normalizeURL canonicalizes a URL for deduplication: fragment stripped,
// query params sorted, lowercased. Ported from the teacher's
// internal/services/crawler.normalizeURL.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Fragment = ""

	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	return strings.ToLower(u.String())
}
