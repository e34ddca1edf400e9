package tasktypes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/gazetteer"
)

type stubSource struct{}

func (stubSource) Fetch(ctx context.Context, domain string, kind gazetteer.Kind) (int, int, []string, error) {
	return 4, 6, []string{"https://" + domain + "/world/" + domain}, nil
}

func TestGazetteerIngestConstructorPopulatesCache(t *testing.T) {
	cache, err := gazetteer.Open(arbor.NewLogger(), gazetteer.Options{Path: filepath.Join(t.TempDir(), "gz"), MinVerifiedHubs: 2})
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	ctor := NewGazetteerIngestConstructor(stubSource{}, cache)
	current, total, err := runConstructor(t, ctor, GazetteerIngestConfig{Domains: []string{"france"}, Kind: gazetteer.KindCountry})
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.Equal(t, int64(1), total)

	status, _ := cache.Readiness("france")
	assert.Equal(t, "ready", status)
}
