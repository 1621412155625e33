package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, handler func(w http.ResponseWriter, req embeddingRequest)) (*OpenAIEmbeddingProvider, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIEmbeddingProvider(&config.EmbeddingConfig{
		Model:      "text-embedding-3-small",
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Dimensions: 3,
	})
	return p, &hits
}

func okEmbedding(w http.ResponseWriter) {
	_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}]}`))
}

func TestOpenAIEmbeddingProvider(t *testing.T) {
	p, _ := newEmbeddingServer(t, func(w http.ResponseWriter, req embeddingRequest) {
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"hello"}, req.Input)
		okEmbedding(w)
	})

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "text-embedding-3-small", p.Model())

	_, err = p.Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEmbedderRetriesTransientErrors(t *testing.T) {
	var n int32
	p, hits := newEmbeddingServer(t, func(w http.ResponseWriter, _ embeddingRequest) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		okEmbedding(w)
	})

	e := NewEmbedder(p, fastPolicy(), 0)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestEmbedderGivesUpAfterPolicy(t *testing.T) {
	p, hits := newEmbeddingServer(t, func(w http.ResponseWriter, _ embeddingRequest) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	e := NewEmbedder(p, fastPolicy(), 0)
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.EqualValues(t, 3, atomic.LoadInt32(hits))
}

func TestEmbedderDoesNotRetryAuthErrors(t *testing.T) {
	p, hits := newEmbeddingServer(t, func(w http.ResponseWriter, _ embeddingRequest) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	e := NewEmbedder(p, fastPolicy(), 0)
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestEmbedderRejectsWrongDimensions(t *testing.T) {
	p, hits := newEmbeddingServer(t, func(w http.ResponseWriter, _ embeddingRequest) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	})

	e := NewEmbedder(p, fastPolicy(), 0)
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestEmbedBatchPreservesOrderAndReportsProgress(t *testing.T) {
	provider := &wordProvider{}
	e := NewEmbedder(provider, fastPolicy(), 5*time.Millisecond)

	var reports [][2]int
	progress := ProgressFunc(func(_ context.Context, completed, total int) {
		reports = append(reports, [2]int{completed, total})
	})

	texts := []string{"one", "one two", "one two three"}
	start := time.Now()
	vecs, err := e.EmbedBatch(context.Background(), texts, progress)
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, reports)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestEmbedBatchWithoutReporter(t *testing.T) {
	provider := &wordProvider{fail: map[string]int{"flaky": 1}}
	e := NewEmbedder(provider, fastPolicy(), 0)

	vecs, err := e.EmbedBatch(context.Background(), []string{"flaky", "fine"}, nil)
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, provider.callCount())
}

func TestEmbedBatchStopsOnCancel(t *testing.T) {
	e := NewEmbedder(&wordProvider{}, fastPolicy(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.EmbedBatch(ctx, []string{"a", "b"}, nil)
	assert.Error(t, err)
}
