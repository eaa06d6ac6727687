package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/xhad/recall/internal/types"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Backend    string
	Model      string
	BaseURL    string // Ollama server URL or OpenAI-compatible base URL
	APIKey     string
	Dimensions int
	BatchSize  int
	RateLimit  float64 // requests per second, 0 means unlimited
}

// Embedder turns text into L2-normalized vectors through a langchaingo
// embedding client.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

var _ types.Embedder = (*Embedder)(nil)

func applyEmbedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Backend == "" {
		config.Backend = BackendOllama
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Dimensions == 0 {
		config.Dimensions = 768
	}
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}
	return config
}

// NewEmbedderWithConfig creates an Embedder talking to the configured backend.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = applyEmbedderDefaults(config)

	client, err := newEmbeddingClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return NewEmbedderWithClient(client, config)
}

// NewEmbedderWithClient wraps an existing embedding client.
func NewEmbedderWithClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	config = applyEmbedderDefaults(config)

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default().With("component", "embedder", "backend", config.Backend),
	}, nil
}

func newEmbeddingClient(config EmbedderConfig) (embeddings.EmbedderClient, error) {
	switch config.Backend {
	case BackendOllama:
		client, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendOpenAI:
		token := config.APIKey
		if token == "" {
			// Local OpenAI-compatible servers accept any token.
			token = "none"
		}
		client, err := openai.New(
			openai.WithBaseURL(config.BaseURL),
			openai.WithToken(token),
			openai.WithEmbeddingModel(config.Model),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding backend %q", types.ErrInvalidInput, config.Backend)
	}
}

// WithLogger replaces the embedder's logger.
func (e *Embedder) WithLogger(logger *slog.Logger) *Embedder {
	if logger != nil {
		e.logger = logger.With("component", "embedder", "backend", e.config.Backend)
	}
	return e
}

// Dimensions is the vector length every embedding must have.
func (e *Embedder) Dimensions() int {
	return e.config.Dimensions
}

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany generates embeddings for texts, preserving their order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	e.logger.Debug("generating embeddings", "count", len(texts))
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: create embeddings: %w", types.ErrDependencyUnavailable, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, received %d",
			types.ErrUnparseableOutput, len(texts), len(vectors))
	}

	for i, v := range vectors {
		if e.config.Dimensions > 0 && len(v) != e.config.Dimensions {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				types.ErrUnparseableOutput, i, len(v), e.config.Dimensions)
		}
		vectors[i] = Normalize(v)
	}

	return vectors, nil
}

// Normalize scales v to unit length in place. Zero vectors are returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
