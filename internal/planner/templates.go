package planner

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

const defaultTemplateArenaSize = 512

// minHitRate below which a template is retired (spec §4.5 "Pattern discovery").
const minHitRate = 0.1

// PatternTemplate is a learned URL shape such as
// "https://{host}/world/{country}", scored by hit-rate and evicted on an LRU
// basis once the arena is full.
type PatternTemplate struct {
	Template  string
	HitCount  int
	MissCount int
	LastUsed  time.Time
}

// HitRate returns the template's observed success ratio, or 1.0 for an
// unscored (brand new) template so it gets a fair trial before retirement.
func (p PatternTemplate) HitRate() float64 {
	total := p.HitCount + p.MissCount
	if total == 0 {
		return 1.0
	}
	return float64(p.HitCount) / float64(total)
}

// TemplateArena is a bounded, LRU-evicting store of PatternTemplates. Default
// capacity 512 per SPEC_FULL.md's Open Question resolution.
type TemplateArena struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element // template string -> list element
	order    *list.List               // front = most recently used
}

type templateElem struct {
	key   string
	value PatternTemplate
}

// NewTemplateArena creates an arena with the given capacity (<=0 uses the
// default of 512).
func NewTemplateArena(capacity int) *TemplateArena {
	if capacity <= 0 {
		capacity = defaultTemplateArenaSize
	}
	return &TemplateArena{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Observe records a hit or miss against template, creating it if absent and
// evicting the least-recently-used entry if the arena is at capacity.
func (a *TemplateArena) Observe(template string, hit bool) PatternTemplate {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if el, ok := a.entries[template]; ok {
		te := el.Value.(*templateElem)
		if hit {
			te.value.HitCount++
		} else {
			te.value.MissCount++
		}
		te.value.LastUsed = now
		a.order.MoveToFront(el)
		return te.value
	}

	te := &templateElem{key: template, value: PatternTemplate{Template: template, LastUsed: now}}
	if hit {
		te.value.HitCount = 1
	} else {
		te.value.MissCount = 1
	}
	el := a.order.PushFront(te)
	a.entries[template] = el

	if a.order.Len() > a.capacity {
		a.evictLRU()
	}
	return te.value
}

func (a *TemplateArena) evictLRU() {
	oldest := a.order.Back()
	if oldest == nil {
		return
	}
	a.order.Remove(oldest)
	delete(a.entries, oldest.Value.(*templateElem).key)
}

// Active returns templates whose hit-rate has not fallen below minHitRate,
// ordered most-recently-used first — the candidate set for substitution.
func (a *TemplateArena) Active() []PatternTemplate {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []PatternTemplate
	for el := a.order.Front(); el != nil; el = el.Next() {
		te := el.Value.(*templateElem)
		if te.value.HitRate() >= minHitRate {
			out = append(out, te.value)
		}
	}
	return out
}

// Len reports the current number of tracked templates.
func (a *TemplateArena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.order.Len()
}

// Substitute fills a template's {placeholder} slots from values, e.g.
// Substitute("https://{host}/world/{country}", map[string]string{"host":
// "news.example.com", "country": "france"}).
func Substitute(template string, values map[string]string) string {
	out := template
	for key, val := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}
