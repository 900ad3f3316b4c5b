// Package openai provides the text-embedding client used for query and
// document vectors.
package openai

import (
	"context"

	"github.com/rotisserie/eris"
	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/grounded-chat/internal/model"
	"github.com/sells-group/grounded-chat/internal/resilience"
)

// Client defines the embedding operations used by retrieval and ingestion.
type Client interface {
	// Embed converts text to a fixed-dimension vector. Input longer than
	// the configured maximum is truncated at a rune boundary, never
	// silently corrupted.
	Embed(ctx context.Context, text string) (*EmbedResult, error)

	// EmbedBatch embeds several texts in one request, preserving order.
	EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedResult, error)
}

// EmbedResult is a single embedding with its token cost.
type EmbedResult struct {
	Vector []float32
	Tokens int
}

// BatchEmbedResult holds order-preserving embeddings for a batch.
type BatchEmbedResult struct {
	Vectors [][]float32
	Tokens  int
}

// Config configures the embeddings client.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxInputRunes int
	RatePerSecond float64
}

// sdkClient implements Client over sashabaranov/go-openai.
type sdkClient struct {
	client  *gopenai.Client
	model   string
	maxRune int
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates an embeddings client.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("openai: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-large"
	}
	if cfg.MaxInputRunes <= 0 {
		cfg.MaxInputRunes = 8000
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}

	clientCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &sdkClient{
		client:  gopenai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		maxRune: cfg.MaxInputRunes,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("openai: circuit state changed",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}, nil
}

func (c *sdkClient) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	batch, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Vector: batch.Vectors[0], Tokens: batch.Tokens}, nil
}

func (c *sdkClient) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbedResult, error) {
	if len(texts) == 0 {
		return nil, eris.New("openai: empty input")
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, eris.New("openai: empty input")
		}
		input[i] = truncateRunes(t, c.maxRune)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "openai: rate limiter")
	}

	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (gopenai.EmbeddingResponse, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (gopenai.EmbeddingResponse, error) {
			return c.client.CreateEmbeddings(ctx, gopenai.EmbeddingRequest{
				Input:      input,
				Model:      gopenai.EmbeddingModel(c.model),
				Dimensions: model.EmbeddingDimensions,
			})
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "openai: create embeddings")
	}
	if len(resp.Data) != len(input) {
		return nil, eris.New("openai: embedding count mismatch")
	}

	out := &BatchEmbedResult{
		Vectors: make([][]float32, len(resp.Data)),
		Tokens:  resp.Usage.TotalTokens,
	}
	for i, d := range resp.Data {
		if len(d.Embedding) != model.EmbeddingDimensions {
			return nil, eris.Errorf("openai: unexpected embedding dimensionality %d, want %d",
				len(d.Embedding), model.EmbeddingDimensions)
		}
		out.Vectors[i] = d.Embedding
	}
	return out, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
