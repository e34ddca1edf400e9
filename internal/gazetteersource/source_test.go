package gazetteersource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orcaweaver/internal/gazetteer"
)

func TestFetchDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "paris", r.URL.Query().Get("domain"))
		require.Equal(t, "city", r.URL.Query().Get("kind"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"verified_hub_count":3,"candidate_count":5,"candidate_hubs":["https://example.com/a"]}`))
	}))
	defer srv.Close()

	src := New(srv.URL, arbor.NewLogger())
	verified, candidates, hubs, err := src.Fetch(context.Background(), "paris", gazetteer.KindCity)
	require.NoError(t, err)
	require.Equal(t, 3, verified)
	require.Equal(t, 5, candidates)
	require.Equal(t, []string{"https://example.com/a"}, hubs)
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := New(srv.URL, arbor.NewLogger())
	_, _, _, err := src.Fetch(context.Background(), "paris", gazetteer.KindCity)
	require.Error(t, err)
}
