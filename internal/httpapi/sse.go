package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/orcaweaver/internal/eventbus"
)

// handleEvents streams bus events as Server-Sent Events, per spec.md §6
// ("GET /events (SSE) -> stream of bus events"). Grounded on
// internal/handlers/sse_logs_handler.go's streamServiceLogs: SSE headers,
// flush-on-connect, a per-event `data:` write plus flush, and the
// connection's lifetime bound to the request context. The repeatable
// `topic` query parameter narrows which topics to observe (defaults to every topic); `Last-Event-ID` is
// accepted for API compatibility but this adapter's retention is the
// subscriber's own live buffer (events published before Subscribe are not
// replayed) — within that buffer sequence gaps are still signaled via the
// bus's lag marker (spec IP7).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	topics := parseTopics(r.URL.Query()["topic"])

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	sub := s.facade.SubscribeEvents(s.deps, topics...)
	defer sub.Cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			writeSSEEvent(w, flusher, ev)
		}
	}
}

func parseTopics(raw []string) []eventbus.Topic {
	if len(raw) == 0 {
		return []eventbus.Topic{
			eventbus.TaskCreated, eventbus.TaskStatusChanged, eventbus.TaskProgress,
			eventbus.TaskCompleted, eventbus.TaskError, eventbus.TaskProblem,
			eventbus.QueueEvent, eventbus.PlannerStage, eventbus.Milestone, eventbus.JobListChanged,
		}
	}
	topics := make([]eventbus.Topic, 0, len(raw))
	for _, t := range raw {
		topics = append(topics, eventbus.Topic(t))
	}
	return topics
}

type ssePayload struct {
	Kind       string      `json:"kind"`
	Topic      string      `json:"topic,omitempty"`
	TaskID     string      `json:"taskId,omitempty"`
	Sequence   uint64      `json:"sequence"`
	OccurredAt string      `json:"occurredAt"`
	Payload    interface{} `json:"payload,omitempty"`
}

func kindLabel(k eventbus.Kind) string {
	switch k {
	case eventbus.KindHeartbeat:
		return "heartbeat"
	case eventbus.KindLag:
		return "lag"
	default:
		return "data"
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev eventbus.Event) {
	data, err := json.Marshal(ssePayload{
		Kind: kindLabel(ev.Kind), Topic: string(ev.Topic), TaskID: ev.TaskID,
		Sequence: ev.Sequence, OccurredAt: ev.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Payload: ev.Payload,
	})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\n", strconv.FormatUint(ev.Sequence, 10))
	fmt.Fprintf(w, "event: %s\n", string(ev.Topic))
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
