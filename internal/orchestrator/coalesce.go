package orchestrator

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// progressCoalescer rate-limits a per-task progress sink to at most one
// flush per window, the latest call winning, per spec §5 ("at most one
// task-progress event is published per 100 ms per task; the latest value
// wins"). There is one instance per active task. The gate itself is a
// golang.org/x/time/rate.Limiter, the same per-key throttling mechanism the
// teacher uses for high-frequency event streams
// (internal/handlers/websocket_events.go's throttlers map), burst 1 so at
// most one flush is ever in flight per window.
type progressCoalescer struct {
	limiter *rate.Limiter
	window  time.Duration
	flush   func(current, total int64, message string, metadata json.RawMessage)

	mu       sync.Mutex
	timer    *time.Timer
	has      bool
	current  int64
	total    int64
	message  string
	metadata json.RawMessage
}

func newProgressCoalescer(window time.Duration, flush func(current, total int64, message string, metadata json.RawMessage)) *progressCoalescer {
	return &progressCoalescer{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		window:  window,
		flush:   flush,
	}
}

// Update records the latest progress values and flushes immediately if the
// limiter has a token available, otherwise schedules a flush for whenever
// the bucket next refills.
func (c *progressCoalescer) Update(current, total int64, message string, metadata json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current, c.total, c.message, c.metadata = current, total, message, metadata
	c.has = true

	if c.limiter.Allow() {
		c.flushLocked()
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.onTimer)
	}
}

func (c *progressCoalescer) onTimer() {
	c.mu.Lock()
	c.timer = nil
	if c.has {
		c.limiter.Allow()
		c.flushLocked()
	}
	c.mu.Unlock()
}

// flushLocked must be called with mu held; it runs the flush callback
// outside the lock to avoid serializing store/bus I/O behind coalescer
// bookkeeping.
func (c *progressCoalescer) flushLocked() {
	c.has = false
	current, total, message, metadata := c.current, c.total, c.message, c.metadata
	go c.flush(current, total, message, metadata)
}

// Stop cancels any pending scheduled flush.
func (c *progressCoalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
