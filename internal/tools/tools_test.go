package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ansari/internal/config"
)

func TestQuranSearchRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quran/search", r.URL.Path)
		assert.Equal(t, "kal-key", r.Header.Get("x-api-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req searchRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "coral", req.Query)

		_ = json.NewEncoder(w).Encode(searchResponse{Results: []Hit{
			{ID: "55:22", Source: "Quran 55:22", Arabic: "يخرج منهما اللؤلؤ والمرجان", English: "From both of them emerge pearl and coral."},
			{ID: "55:58", Source: "Quran 55:58", English: "As if they were rubies and coral."},
		}})
	}))
	defer srv.Close()

	adapter := NewQuranSearch(config.SearchServiceConfig{BaseURL: srv.URL, APIKey: "kal-key", Timeout: "5s"})
	hits, err := adapter.Run(context.Background(), "coral")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Quran 55:22", hits[0].Source)
}

func TestRunPropagatesTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewHadithSearch(config.SearchServiceConfig{BaseURL: srv.URL, APIKey: "k", Timeout: "5s"})
	_, err := adapter.Run(context.Background(), "mercy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFormatters(t *testing.T) {
	adapter := NewTafsirSearch(config.SearchServiceConfig{BaseURL: "http://unused", APIKey: "k"})
	hits := []Hit{
		{Source: "Ibn Kathir on 55:22", Arabic: "المرجان", English: "Coral is the small pearl."},
	}

	list := adapter.FormatAsList(hits)
	require.Len(t, list, 1)
	assert.Contains(t, list[0], "Ibn Kathir on 55:22")
	assert.Contains(t, list[0], "Arabic: المرجان")

	docs := adapter.FormatAsReferenceDocuments(hits)
	require.Len(t, docs, 1)
	assert.Equal(t, "tafsir", docs[0].Origin)
	assert.True(t, docs[0].CitationEnabled)
	assert.Contains(t, docs[0].Body, "Coral is the small pearl.")

	// Empty input formats to empty output; the placeholder substitution
	// belongs to the agent, not the adapter.
	assert.Empty(t, adapter.FormatAsList(nil))
	assert.Empty(t, adapter.FormatAsReferenceDocuments(nil))
}

func TestMawsuahCitationsDisabled(t *testing.T) {
	adapter := NewMawsuahSearch(config.SearchServiceConfig{BaseURL: "http://unused", APIKey: "k"})
	docs := adapter.FormatAsReferenceDocuments([]Hit{{Source: "Mawsuah: Coral"}})
	require.Len(t, docs, 1)
	assert.False(t, docs[0].CitationEnabled)
}

func TestRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	registry, err := NewDefaultRegistry(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"search_quran", "search_hadith", "search_mawsuah", "search_tafsir"}, registry.Names())

	defs := registry.Definitions()
	require.Len(t, defs, 4)
	assert.Equal(t, "search_quran", defs[0].Name)

	_, ok := registry.Get("search_quran")
	assert.True(t, ok)
	_, ok = registry.Get("search_bible")
	assert.False(t, ok)

	_, err = NewRegistry(NewQuranSearch(cfg.Tools.Quran), NewQuranSearch(cfg.Tools.Quran))
	assert.Error(t, err, "duplicate names rejected")
}
