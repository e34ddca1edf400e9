package frontier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFOByPriority(t *testing.T) {
	f := New()
	require.True(t, f.Enqueue(Entry{URL: "https://a.example.com/low", Host: "a.example.com", Priority: 10}))
	require.True(t, f.Enqueue(Entry{URL: "https://a.example.com/high", Host: "a.example.com", Priority: 90}))

	ctx := context.Background()
	first, err := f.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/high", first.URL)

	second, err := f.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/low", second.URL)
}

func TestEnqueueDeduplicatesByNormalizedURL(t *testing.T) {
	f := New()
	assert.True(t, f.Enqueue(Entry{URL: "https://example.com/a?b=1&a=2", Priority: 5}))
	assert.False(t, f.Enqueue(Entry{URL: "https://EXAMPLE.com/a?a=2&b=1", Priority: 5}))
	assert.Equal(t, 1, f.Size())
}

func TestEnqueueIsPriorityMonotonic(t *testing.T) {
	f := New()
	f.Enqueue(Entry{URL: "https://example.com/x", Priority: 5})
	raised := f.Enqueue(Entry{URL: "https://example.com/x", Priority: 50})
	assert.True(t, raised)
	assert.Equal(t, 1, f.Size())

	lowered := f.Enqueue(Entry{URL: "https://example.com/x", Priority: 1})
	assert.False(t, lowered)

	entry, err := f.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(50), entry.Priority)
}

// TestCostAwarePriorityReordersCheapFetches exercises the worked example in
// the frontier priority testable property: U1 (base 50, est 1000ms) and U2
// (base 50, est 100ms) at P95=500ms must dequeue U2 before U1, because U2's
// effective priority (50 * 1.3 = 65) exceeds U1's (50 * 1.0 = 50).
func TestCostAwarePriorityReordersCheapFetches(t *testing.T) {
	f := New(WithScorer(ScorerConfig{Enabled: true, P95RecentMS: 500}))

	f.Enqueue(Entry{URL: "https://example.com/u1", Priority: 50, EstimatedCostMS: 1000})
	f.Enqueue(Entry{URL: "https://example.com/u2", Priority: 50, EstimatedCostMS: 100})

	first, err := f.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/u2", first.URL)

	second, err := f.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/u1", second.URL)
}

func TestHostFairnessDepressesOverfetchedHost(t *testing.T) {
	f := New(WithHostFairness(time.Minute, 0.3))

	f.Enqueue(Entry{URL: "https://busy.example.com/1", Host: "busy.example.com", Priority: 50})
	f.Enqueue(Entry{URL: "https://busy.example.com/2", Host: "busy.example.com", Priority: 50})
	f.Enqueue(Entry{URL: "https://quiet.example.com/1", Host: "quiet.example.com", Priority: 50})

	ctx := context.Background()
	_, err := f.Dequeue(ctx) // consume one from busy.example.com, recording a token
	require.NoError(t, err)

	next, err := f.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "quiet.example.com", next.Host, "host with fewer recent fetches should win the priority tie")
}

func TestDequeueBlocksUntilEnqueueOrClose(t *testing.T) {
	f := New()
	done := make(chan *Entry, 1)
	go func() {
		e, _ := f.Dequeue(context.Background())
		done <- e
	}()

	time.Sleep(20 * time.Millisecond)
	f.Enqueue(Entry{URL: "https://example.com/a", Priority: 1})

	select {
	case e := <-done:
		require.NotNil(t, e)
		assert.Equal(t, "https://example.com/a", e.URL)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}

func TestDequeueReturnsNilOnClose(t *testing.T) {
	f := New()
	done := make(chan *Entry, 1)
	go func() {
		e, _ := f.Dequeue(context.Background())
		done <- e
	}()

	time.Sleep(20 * time.Millisecond)
	f.Close()

	select {
	case e := <-done:
		assert.Nil(t, e)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock on close")
	}
}

func TestDequeueRespectsContextCancellation(t *testing.T) {
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSkipRecordsEventWithoutEnqueueing(t *testing.T) {
	var gotAction, gotReason string
	f := New(WithEventSink(func(action, url string, depth int, host, reason string, size int) {
		gotAction, gotReason = action, reason
	}))

	f.Skip("https://example.com/blocked", "robots-disallow")
	assert.Equal(t, "skip", gotAction)
	assert.Equal(t, "robots-disallow", gotReason)
	assert.Equal(t, 0, f.Size())
}

func TestEnqueueAfterCloseIsRejected(t *testing.T) {
	f := New()
	f.Close()
	assert.False(t, f.Enqueue(Entry{URL: "https://example.com/a", Priority: 1}))
}

func TestSnapshotRespectsLimit(t *testing.T) {
	f := New()
	for i := 0; i < 5; i++ {
		f.Enqueue(Entry{URL: "https://example.com/" + string(rune('a'+i)), Priority: float64(i)})
	}
	assert.Len(t, f.Snapshot(2), 2)
	assert.Len(t, f.Snapshot(0), 5)
}
