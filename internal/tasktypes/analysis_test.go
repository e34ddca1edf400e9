package tasktypes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/store"
)

func TestAnalysisConstructorSummarizesProblems(t *testing.T) {
	logger := arbor.NewLogger()
	st, err := store.Open(logger, store.Options{Path: filepath.Join(t.TempDir(), "analysis.db"), MaxRetries: 3, RetryInitialMS: 5})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.CreateTask(context.Background(), "crawl-1", "crawl", nil))
	st.AppendProblem(context.Background(), "crawl-1", store.Problem{Kind: "silence"})
	st.AppendProblem(context.Background(), "crawl-1", store.Problem{Kind: "silence"})
	st.AppendMilestone(context.Background(), "crawl-1", store.Milestone{Kind: "hub-found"})

	ctor := NewAnalysisConstructor(st)
	current, total, err := runConstructor(t, ctor, AnalysisConfig{TaskIDs: []string{"crawl-1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.Equal(t, int64(1), total)
}
