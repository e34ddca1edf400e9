// Package gazetteer is a bounded cache of place-hub signals consumed by the
// Planner's geographic readiness judgments.
//
// Grounded on the teacher's internal/storage/badger package: BadgerDB's
// badgerhold.Open/options setup (connection.go) and the Storage-per-concern
// wrapper shape (auth_storage.go, kv_storage.go) are carried over verbatim
// in idiom, repurposed here for one concern (gazetteer signals) instead of
// auth/documents/jobs.
package gazetteer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

const defaultMaxDomains = 2048

// Kind is the geographic granularity of a GazetteerSignal.
type Kind string

const (
	KindContinent Kind = "continent"
	KindCountry   Kind = "country"
	KindRegion    Kind = "region"
	KindCity      Kind = "city"
)

// Signal is the precomputed input to a Planner readiness judgment.
type Signal struct {
	ID               string    `badgerhold:"key"`
	Domain           string    `badgerhold:"index"`
	Kind             Kind
	VerifiedHubCount int
	CandidateCount   int
	LastFetchAt      time.Time
	CandidateHubs    []string
}

// Readiness is the verdict the Planner consults before seeding a place-hub
// candidate for a domain.
type Readiness struct {
	Status string // "ready" | "insufficient" | "unknown"
	Reason string
}

// Options configures Cache construction.
type Options struct {
	Path               string
	MinVerifiedHubs    int
	ResetOnStartup     bool
	MaxDomains         int
}

// Cache is a bounded, badger-backed key-value store of GazetteerSignal rows
// keyed by "domain:kind". Eviction is size-bounded by MaxDomains: once
// exceeded, the oldest-fetched signal is dropped on the next Put.
type Cache struct {
	store           *badgerhold.Store
	logger          arbor.ILogger
	minVerifiedHubs int
	maxDomains      int
}

// Open creates or opens a gazetteer cache at opts.Path.
func Open(logger arbor.ILogger, opts Options) (*Cache, error) {
	if opts.ResetOnStartup {
		if _, err := os.Stat(opts.Path); err == nil {
			if err := os.RemoveAll(opts.Path); err != nil {
				logger.Warn().Err(err).Str("path", opts.Path).Msg("failed to reset gazetteer cache directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create gazetteer cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = opts.Path
	options.ValueDir = opts.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open gazetteer cache: %w", err)
	}

	minHubs := opts.MinVerifiedHubs
	if minHubs <= 0 {
		minHubs = 1
	}

	maxDomains := opts.MaxDomains
	if maxDomains <= 0 {
		maxDomains = defaultMaxDomains
	}

	return &Cache{
		store:           store,
		logger:          logger,
		minVerifiedHubs: minHubs,
		maxDomains:      maxDomains,
	}, nil
}

// Close releases the underlying badger handles.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func signalKey(domain string, kind Kind) string {
	return domain + ":" + string(kind)
}

// Get loads the cached signal for (domain, kind), if present.
func (c *Cache) Get(domain string, kind Kind) (*Signal, bool, error) {
	var s Signal
	err := c.store.Get(signalKey(domain, kind), &s)
	if err == badgerhold.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get gazetteer signal: %w", err)
	}
	return &s, true, nil
}

// Put upserts a signal, enforcing the bounded-domain-count eviction policy
// (drop the least-recently-fetched signal once MaxDomains is exceeded).
func (c *Cache) Put(s *Signal) error {
	if s.ID == "" {
		s.ID = signalKey(s.Domain, s.Kind)
	}
	if s.LastFetchAt.IsZero() {
		s.LastFetchAt = time.Now()
	}

	if err := c.store.Upsert(s.ID, s); err != nil {
		return fmt.Errorf("failed to upsert gazetteer signal: %w", err)
	}

	c.evictIfOverCapacity()
	return nil
}

func (c *Cache) evictIfOverCapacity() {
	var all []Signal
	if err := c.store.Find(&all, nil); err != nil {
		c.logger.Warn().Err(err).Msg("failed to scan gazetteer cache for eviction check")
		return
	}
	if len(all) <= c.maxDomains {
		return
	}

	oldest := all[0]
	for _, s := range all[1:] {
		if s.LastFetchAt.Before(oldest.LastFetchAt) {
			oldest = s
		}
	}
	if err := c.store.Delete(oldest.ID, &Signal{}); err != nil {
		c.logger.Warn().Err(err).Str("id", oldest.ID).Msg("failed to evict oldest gazetteer signal")
	}
}

// Readiness computes a readiness verdict for domain by inspecting its
// country-level signal: "ready" if verified hub count meets the configured
// minimum, "insufficient" if a signal exists but falls short, "unknown" if
// no signal has ever been recorded.
func (c *Cache) Readiness(domain string) (status string, reason string) {
	s, found, err := c.Get(domain, KindCountry)
	if err != nil || !found {
		return "unknown", "no gazetteer signal recorded yet"
	}
	if s.VerifiedHubCount >= c.minVerifiedHubs {
		return "ready", fmt.Sprintf("%d verified hubs", s.VerifiedHubCount)
	}
	return "insufficient", fmt.Sprintf("only %d verified hubs, need %d", s.VerifiedHubCount, c.minVerifiedHubs)
}

// CandidateHubs returns the cached candidate hub URLs for (domain, kind).
func (c *Cache) CandidateHubs(domain, kind string) []string {
	s, found, err := c.Get(domain, Kind(kind))
	if err != nil || !found {
		return nil
	}
	return s.CandidateHubs
}
