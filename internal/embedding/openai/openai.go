// Package openai adapts the OpenAI embeddings API (or any compatible
// endpoint) to the embedding.Encoder interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// Encoder sends batches to an OpenAI-compatible embeddings endpoint.
// It is immutable after New and safe for concurrent use.
type Encoder struct {
	client     *goopenai.Client
	model      string
	dimension  int
	maxRetries int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// New creates an encoder using the provided configuration. The API key
// is read from the configured environment variable.
func New(cfg Config) (*Encoder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	dimension := 1536 // text-embedding-3-small and ada-002
	if cfg.Model == "text-embedding-3-large" {
		dimension = 3072
	}
	return &Encoder{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimension:  dimension,
		maxRetries: 5,
	}, nil
}

// Name returns the identifier of this encoder implementation.
func (e *Encoder) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced vectors.
func (e *Encoder) Dimension() int { return e.dimension }

// EncodeBatch embeds the whole batch in a single API call, retrying
// rate limits and server errors with exponential backoff.
func (e *Encoder) EncodeBatch(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		resp, err := e.client.CreateEmbeddings(context.Background(), goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(e.model),
			Input: texts,
		})
		if err != nil {
			lastErr = err
			if retriable(err) && attempt < e.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
		}
		out := make([][]float64, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
			}
			vec := make([]float64, len(d.Embedding))
			for i, x := range d.Embedding {
				vec[i] = float64(x)
			}
			out[d.Index] = vec
		}
		return out, nil
	}
	return nil, fmt.Errorf("openai embeddings: %w", lastErr)
}

func retriable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	// transport-level failures are worth a retry
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
