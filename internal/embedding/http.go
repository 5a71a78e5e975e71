package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/resilience"
)

// embedRequest/embedResponse mirror Ollama's /api/embed wire shape, the
// de facto contract for local embedding inference servers.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HTTPProvider talks to a local Ollama-compatible embedding endpoint. It
// wraps every call in a retry-with-backoff and failure-breaker policy, and
// caps in-flight requests at MaxFanOut (1 for local single-inference
// backends).
type HTTPProvider struct {
	client  *http.Client
	cfg     Config
	breaker *resilience.Breaker
	backoff resilience.Backoff
	sem     chan struct{}
}

// NewHTTPProvider builds an HTTPProvider. cfg.Endpoint and cfg.Model are
// required; cfg.Dimensions must match the collection's configured
// dimension (the caller is responsible for the Shape check on mismatch).
func NewHTTPProvider(cfg Config) *HTTPProvider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.TimeoutS <= 0 {
		cfg.TimeoutS = DefaultConfig().TimeoutS
	}
	if cfg.MaxFanOut <= 0 {
		cfg.MaxFanOut = 1
	}
	return &HTTPProvider{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxFanOut * 2,
				MaxIdleConnsPerHost: cfg.MaxFanOut * 2,
				MaxConnsPerHost:     cfg.MaxFanOut * 2,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		cfg:     cfg,
		breaker: resilience.NewBreaker(5, 30*time.Second),
		backoff: resilience.DefaultBackoff(),
		sem:     make(chan struct{}, cfg.MaxFanOut),
	}
}

func (p *HTTPProvider) Dimensions() int { return p.cfg.Dimensions }
func (p *HTTPProvider) MaxTokens() int  { return 0 }

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := validateBatch(texts, p.cfg.BatchSize); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, memerr.CancelledErr()
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, memerr.CancelledErr()
	}
	defer func() { <-p.sem }()

	results := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, p.cfg.Dimensions)
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	pendingTexts := make([]string, len(pending))
	for i, idx := range pending {
		pendingTexts[i] = texts[idx]
	}

	vecs, err := resilience.RunValue(ctx, p.breaker, func() ([][]float32, error) {
		return resilience.Retry(ctx, p.backoff, func() ([][]float32, error) {
			return p.doRequest(ctx, pendingTexts)
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrOpen) {
			return nil, memerr.UpstreamErr(err, "embedding provider breaker open")
		}
		if ctx.Err() != nil {
			return nil, memerr.CancelledErr()
		}
		if memerr.KindOf(err) == memerr.RateLimited {
			return nil, err
		}
		return nil, memerr.UpstreamErr(err, "embedding request failed")
	}

	if len(vecs) != len(pendingTexts) {
		return nil, memerr.UpstreamErr(nil, "embedding provider returned %d vectors for %d inputs", len(vecs), len(pendingTexts))
	}
	for i, idx := range pending {
		results[idx] = vecs[i]
	}
	return results, nil
}

func (p *HTTPProvider) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutS)*time.Second)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.cfg.Endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, memerr.RateLimitedErr("embedding provider rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	return result.Embeddings, nil
}
