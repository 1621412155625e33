package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ryanmac/youtube-extraction-service/internal/config"
	"github.com/ryanmac/youtube-extraction-service/internal/domain"
	"github.com/ryanmac/youtube-extraction-service/internal/logger"
	"github.com/ryanmac/youtube-extraction-service/internal/retry"
)

// EmbeddingProvider performs a single embedding call without retries.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// OpenAIEmbeddingProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbeddingProvider struct {
	client     *resty.Client
	model      string
	dimensions int
}

func NewOpenAIEmbeddingProvider(cfg *config.EmbeddingConfig) *OpenAIEmbeddingProvider {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &OpenAIEmbeddingProvider{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (p *OpenAIEmbeddingProvider) Model() string {
	return p.model
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty embedding input", domain.ErrValidation)
	}

	var resp embeddingResponse
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: p.model, Input: []string{text}, Dimensions: p.dimensions}).
		SetResult(&resp).
		SetError(&resp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("failed to call embeddings API: %w", err)
	}

	if httpResp.StatusCode() != http.StatusOK {
		msg := fmt.Sprintf("status %d", httpResp.StatusCode())
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		err := fmt.Errorf("embeddings API error: %s", msg)
		// Auth and request errors will not heal on retry.
		if httpResp.StatusCode() == http.StatusUnauthorized || httpResp.StatusCode() == http.StatusBadRequest {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	vec := resp.Data[0].Embedding
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, expected %d", domain.ErrValidation, len(vec), p.dimensions)
	}
	return vec, nil
}

// Embedder adds retries and rate limiting on top of a provider.
type Embedder struct {
	provider EmbeddingProvider
	policy   retry.Policy
	pause    time.Duration
}

func NewEmbedder(provider EmbeddingProvider, policy retry.Policy, pause time.Duration) *Embedder {
	return &Embedder{provider: provider, policy: policy, pause: pause}
}

// Embed returns the vector for text, or an error matching
// domain.ErrEmbeddingFailed once the retry policy is exhausted.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, e.policy, "embed", func(ctx context.Context) error {
		v, err := e.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbeddingFailed, "embed", err)
	}
	return vec, nil
}

// EmbedBatch embeds texts one at a time, in order, pausing between calls.
// progress, when non-nil, is told after each item.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, progress ProgressReporter) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	start := time.Now()

	for i, text := range texts {
		if i > 0 && e.pause > 0 {
			if err := sleepCtx(ctx, e.pause); err != nil {
				return nil, domain.Wrap(domain.ErrEmbeddingFailed, "embed batch", err)
			}
		}

		vec, err := e.Embed(ctx, text)
		if err != nil {
			logger.CtxError(ctx, "Embedding chunk %d/%d failed: %v", i+1, len(texts), err)
			return nil, err
		}
		out = append(out, vec)
		report(ctx, progress, i+1, len(texts))
		logger.CtxDebug(ctx, "Embedding progress: %.2f%% (%d/%d)", Percent(i+1, len(texts)), i+1, len(texts))
	}

	logger.With(logger.Fields{logger.FieldCount: len(texts)}).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "Embedded batch with %s", e.provider.Model())
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
