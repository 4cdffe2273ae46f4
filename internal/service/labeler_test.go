package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/topicmodel/internal/domain"
)

type wikiStub struct {
	mu      sync.Mutex
	queries []string
	results map[string][]string
}

func (s *wikiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	s.queries = append(s.queries, q.Get("search"))
	s.mu.Unlock()
	if q.Get("action") != "opensearch" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	titles := s.results[q.Get("search")]
	if titles == nil {
		titles = []string{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode([]interface{}{q.Get("search"), titles, []string{}, []string{}})
}

func TestWikipediaLabeler(t *testing.T) {
	words := []domain.WordWeight{
		{Word: "kernel", Weight: 0.3},
		{Word: "linux", Weight: 0.2},
		{Word: "driver", Weight: 0.05},
		{Word: "module", Weight: 0.02},
		{Word: "patch", Weight: 0.004},
	}

	tests := []struct {
		name    string
		results map[string][]string
		want    []string
		queries []string
	}{
		{
			name:    "likely words",
			results: map[string][]string{"kernel linux driver module": {"Linux kernel", "Device driver", "Kernel (OS)", "Extra"}},
			want:    []string{"Linux kernel", "Device driver", "Kernel (OS)"},
			queries: []string{"kernel linux driver module"},
		},
		{
			name:    "fallback to top words",
			results: map[string][]string{"kernel linux driver": {"Linux kernel"}},
			want:    []string{"Linux kernel"},
			queries: []string{"kernel linux driver module", "kernel linux driver"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &wikiStub{results: tt.results}
			srv := httptest.NewServer(stub)
			defer srv.Close()

			labeler := NewWikipediaLabeler(&LabelerConfig{Endpoint: srv.URL})
			got, err := labeler.Label(context.Background(), words)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.queries, stub.queries)
		})
	}
}

func TestWikipediaLabelerTopWordsOnly(t *testing.T) {
	stub := &wikiStub{results: map[string][]string{"alpha beta gamma": {"Greek alphabet"}}}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	labeler := NewWikipediaLabeler(&LabelerConfig{Endpoint: srv.URL})
	got, err := labeler.Label(context.Background(), []domain.WordWeight{
		{Word: "alpha", Weight: 0.001},
		{Word: "beta", Weight: 0.001},
		{Word: "gamma", Weight: 0.001},
		{Word: "delta", Weight: 0.001},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Greek alphabet"}, got)
	assert.Equal(t, []string{"alpha beta gamma"}, stub.queries)
}

func TestWikipediaLabelerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	labeler := NewWikipediaLabeler(&LabelerConfig{Endpoint: srv.URL})
	_, err := labeler.Label(context.Background(), []domain.WordWeight{{Word: "kernel", Weight: 0.5}})
	assert.Error(t, err)
}
