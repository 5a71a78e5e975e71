package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, dims int, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = 1
			resp.Embeddings[i] = vec
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestHTTPProvider_Embed(t *testing.T) {
	srv := newTestServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, Model: "test-model", Dimensions: 8, BatchSize: 4, TimeoutS: 5})
	vec, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestHTTPProvider_EmptyTextIsZeroVector(t *testing.T) {
	srv := newTestServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, Model: "test-model", Dimensions: 8, BatchSize: 4, TimeoutS: 5})
	vec, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestHTTPProvider_OversizedBatchIsInvalidArgument(t *testing.T) {
	srv := newTestServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, Model: "m", Dimensions: 8, BatchSize: 2, TimeoutS: 5})
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Equal(t, memerr.InvalidArgument, memerr.KindOf(err))
}

func TestHTTPProvider_RateLimited(t *testing.T) {
	srv := newTestServer(t, 8, http.StatusTooManyRequests)
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, Model: "m", Dimensions: 8, BatchSize: 4, TimeoutS: 5})
	_, err := p.Embed(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, memerr.RateLimited, memerr.KindOf(err))
}

func TestHTTPProvider_CancelledContext(t *testing.T) {
	srv := newTestServer(t, 8, http.StatusOK)
	defer srv.Close()

	p := NewHTTPProvider(Config{Endpoint: srv.URL, Model: "m", Dimensions: 8, BatchSize: 4, TimeoutS: 5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Embed(ctx, "hi")
	require.Error(t, err)
}
