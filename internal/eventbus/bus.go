package eventbus

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

const (
	defaultBufferSize      = 256
	defaultHeartbeatPeriod = 30 * time.Second
)

// Subscription is the capability returned by Subscribe: a channel of events
// and a cancel function. The caller owns draining Events until Cancel is
// called; Cancel is idempotent and safe to call from any goroutine.
type Subscription struct {
	Events <-chan Event
	Cancel func()
}

// Bus is a typed, topic-based pub/sub bus with per-subscriber bounded
// buffers, heartbeats, and best-effort lag notification on overflow.
// Grounded on the subscriber shape of the teacher's
// internal/handlers/sse_logs_handler.go (chan + done + cancel), generalized
// into the bus itself instead of being reimplemented ad hoc per handler.
type Bus struct {
	mu     sync.Mutex
	subs   map[Topic]map[*subscriber]struct{}
	seq    map[Topic]uint64
	logger arbor.ILogger

	bufferSize      int
	heartbeatPeriod time.Duration
}

type subscriber struct {
	ch     chan Event
	topics []Topic
	done   chan struct{}
	once   sync.Once

	// sendMu orders sends against Cancel closing ch; closed is set under it.
	sendMu sync.Mutex
	closed bool
}

// New creates an empty Bus.
func New(logger arbor.ILogger) *Bus {
	return &Bus{
		subs:            make(map[Topic]map[*subscriber]struct{}),
		seq:             make(map[Topic]uint64),
		logger:          logger,
		bufferSize:      defaultBufferSize,
		heartbeatPeriod: defaultHeartbeatPeriod,
	}
}

// Subscribe registers interest in the given topics and returns a cancellable
// stream. A heartbeat event is emitted on the returned channel at least
// every heartbeatPeriod so downstream HTTP/SSE adapters can keep the
// connection alive.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	sub := &subscriber{
		ch:     make(chan Event, b.bufferSize+1), // one extra slot reserved for the lag marker
		topics: topics,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[*subscriber]struct{})
		}
		b.subs[topic][sub] = struct{}{}
	}
	b.mu.Unlock()

	go b.heartbeatLoop(sub)

	cancel := func() {
		sub.once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			for _, topic := range sub.topics {
				delete(b.subs[topic], sub)
			}
			b.mu.Unlock()
			sub.sendMu.Lock()
			sub.closed = true
			close(sub.ch)
			sub.sendMu.Unlock()
		})
	}

	return &Subscription{Events: sub.ch, Cancel: cancel}
}

func (b *Bus) heartbeatLoop(sub *subscriber) {
	ticker := time.NewTicker(b.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			b.deliver(sub, Event{Kind: KindHeartbeat, OccurredAt: time.Now()})
		}
	}
}

// Publish delivers an event to every subscriber of topic. Publish never
// blocks the caller: a subscriber whose buffer is full has the event
// dropped and receives a best-effort KindLag marker instead.
func (b *Bus) Publish(topic Topic, taskID string, payload interface{}) {
	b.mu.Lock()
	b.seq[topic]++
	seq := b.seq[topic]
	subs := make([]*subscriber, 0, len(b.subs[topic]))
	for s := range b.subs[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	ev := Event{
		Kind:       KindData,
		Topic:      topic,
		TaskID:     taskID,
		Sequence:   seq,
		OccurredAt: time.Now(),
		Payload:    payload,
	}

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(sub *subscriber, ev Event) {
	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if sub.closed {
		return
	}

	if len(sub.ch) < cap(sub.ch)-1 {
		sub.ch <- ev
		return
	}

	// Buffer full: drop the event and try to leave a lag marker so the
	// subscriber can reconcile via a fresh snapshot. If even that fails the
	// subscriber is saturated; the next event it does receive will still
	// show a sequence gap.
	select {
	case sub.ch <- Event{Kind: KindLag, Topic: ev.Topic, OccurredAt: time.Now()}:
	default:
		if b.logger != nil {
			b.logger.Warn().Str("topic", string(ev.Topic)).Msg("subscriber buffer saturated, dropping lag marker too")
		}
	}
}

// BroadcastSnapshot invokes snapshotFn to produce a fresh state event and
// delivers it to every current subscriber of topic. Used when a subscriber
// needs current state (e.g. the active task list) rather than waiting for
// the next incremental change; the snapshot's content is owned entirely by
// the caller so the bus never needs to know task/job shapes.
func (b *Bus) BroadcastSnapshot(topic Topic, snapshotFn func() interface{}) {
	b.Publish(topic, "", snapshotFn())
}

// SubscriberCount reports how many subscribers currently observe topic;
// useful for tests and diagnostics.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
