package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/xhad/recall/internal/types"
)

// SummarizerConfig represents the configuration for a summarizer.
type SummarizerConfig struct {
	Backend     string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Template    string // must contain one %s for the excerpts
}

// Summarizer condenses a group of related chunks into a short summary using
// a chat model.
type Summarizer struct {
	config SummarizerConfig
	llm    llms.Model
	logger *slog.Logger
}

const defaultSummaryTemplate = `Summarize these related business call excerpts in 2-3 sentences. Focus on key decisions, action items, and important context. Be concise.

EXCERPTS:
%s

SUMMARY:`

func applySummarizerDefaults(config SummarizerConfig) (SummarizerConfig, error) {
	if config.Backend == "" {
		config.Backend = BackendOllama
	}
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.3
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("%w: temperature must be between 0 and 1", types.ErrInvalidInput)
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("%w: max tokens cannot be negative", types.ErrInvalidInput)
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 200
	}
	if config.Template == "" {
		config.Template = defaultSummaryTemplate
	}
	return config, nil
}

// NewSummarizerWithConfig creates a Summarizer for the configured backend.
func NewSummarizerWithConfig(config SummarizerConfig) (*Summarizer, error) {
	config, err := applySummarizerDefaults(config)
	if err != nil {
		return nil, err
	}

	var model llms.Model
	switch config.Backend {
	case BackendOllama:
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case BackendOpenAI:
		token := config.APIKey
		if token == "" {
			token = "none"
		}
		model, err = openai.New(openai.WithBaseURL(config.BaseURL), openai.WithToken(token), openai.WithModel(config.Model))
	default:
		return nil, fmt.Errorf("%w: unknown llm backend %q", types.ErrInvalidInput, config.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Summarizer{
		config: config,
		llm:    model,
		logger: slog.Default().With("component", "summarizer"),
	}, nil
}

// NewSummarizer wraps an existing model.
func NewSummarizer(model llms.Model, config SummarizerConfig) (*Summarizer, error) {
	config, err := applySummarizerDefaults(config)
	if err != nil {
		return nil, err
	}
	return &Summarizer{
		config: config,
		llm:    model,
		logger: slog.Default().With("component", "summarizer"),
	}, nil
}

// Summarize returns a short summary of texts. An empty model response is
// reported as types.ErrUnparseableOutput rather than an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: nothing to summarize", types.ErrInvalidInput)
	}

	prompt := fmt.Sprintf(s.config.Template, strings.Join(texts, "\n\n"))

	out, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithTemperature(s.config.Temperature),
		llms.WithMaxTokens(s.config.MaxTokens),
	)
	if err != nil {
		s.logger.Error("summary generation failed", "err", err)
		return "", fmt.Errorf("%w: summary: %w", types.ErrDependencyUnavailable, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty summary", types.ErrUnparseableOutput)
	}
	return out, nil
}
