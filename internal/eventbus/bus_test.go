package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPublishSubscribeDelivery(t *testing.T) {
	bus := New(arbor.NewLogger())
	sub := bus.Subscribe(TaskProgress)
	defer sub.Cancel()

	bus.Publish(TaskProgress, "task-1", map[string]int{"current": 5})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, KindData, ev.Kind)
		assert.Equal(t, TaskProgress, ev.Topic)
		assert.Equal(t, "task-1", ev.TaskID)
		assert.Equal(t, uint64(1), ev.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSequenceIsMonotonicPerTopic(t *testing.T) {
	bus := New(arbor.NewLogger())
	sub := bus.Subscribe(QueueEvent)
	defer sub.Cancel()

	bus.Publish(QueueEvent, "t1", 1)
	bus.Publish(QueueEvent, "t1", 2)
	bus.Publish(QueueEvent, "t1", 3)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		ev := <-sub.Events
		seqs = append(seqs, ev.Sequence)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestSubscriberOnlyReceivesSubscribedTopics(t *testing.T) {
	bus := New(arbor.NewLogger())
	sub := bus.Subscribe(TaskCreated)
	defer sub.Cancel()

	bus.Publish(TaskCompleted, "t1", nil)

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event on unsubscribed topic: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := New(arbor.NewLogger())
	sub := bus.Subscribe(Milestone)
	sub.Cancel()

	assert.Equal(t, 0, bus.SubscriberCount(Milestone))

	// Publishing after cancellation must not panic even though the channel
	// is closed; no subscriber is registered any more so deliver is never
	// invoked for it.
	require.NotPanics(t, func() {
		bus.Publish(Milestone, "t1", nil)
	})

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed after Cancel")
}

func TestOverflowDeliversLagMarker(t *testing.T) {
	bus := New(arbor.NewLogger())
	bus.bufferSize = 1
	sub := bus.Subscribe(TaskProgress)
	defer sub.Cancel()

	// Fill the single buffer slot, then force an overflow.
	bus.Publish(TaskProgress, "t1", 1)
	bus.Publish(TaskProgress, "t1", 2)

	first := <-sub.Events
	assert.Equal(t, KindData, first.Kind)

	second := <-sub.Events
	assert.Equal(t, KindLag, second.Kind)
}

func TestBroadcastSnapshotDeliversToAllSubscribers(t *testing.T) {
	bus := New(arbor.NewLogger())
	subA := bus.Subscribe(JobListChanged)
	subB := bus.Subscribe(JobListChanged)
	defer subA.Cancel()
	defer subB.Cancel()

	bus.BroadcastSnapshot(JobListChanged, func() interface{} {
		return []string{"job-1", "job-2"}
	})

	evA := <-subA.Events
	evB := <-subB.Events
	assert.Equal(t, []string{"job-1", "job-2"}, evA.Payload)
	assert.Equal(t, []string{"job-1", "job-2"}, evB.Payload)
}
