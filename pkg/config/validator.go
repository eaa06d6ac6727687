package config

import (
	"fmt"
	"net/url"

	"github.com/xhad/recall/pkg/llm"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validBackend(b string) bool {
	return b == llm.BackendOllama || b == llm.BackendOpenAI
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, message string) {
		errors = append(errors, ValidationError{Field: field, Message: message})
	}

	// LLM
	if !validBackend(c.LLM.Backend) {
		add("llm.backend", fmt.Sprintf("unknown backend %q, expected ollama or openai", c.LLM.Backend))
	}
	if c.LLM.BaseURL == "" {
		add("llm.base_url", "base URL is required")
	} else if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		add("llm.base_url", "invalid base URL")
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		add("llm.max_tokens", "max_tokens must be between 1 and 4096")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		add("llm.temperature", "temperature must be between 0 and 1")
	}

	// Embedder
	if !validBackend(c.Embedder.Backend) {
		add("embedder.backend", fmt.Sprintf("unknown backend %q, expected ollama or openai", c.Embedder.Backend))
	}
	if c.Embedder.BaseURL == "" {
		add("embedder.base_url", "base URL is required")
	} else if _, err := url.ParseRequestURI(c.Embedder.BaseURL); err != nil {
		add("embedder.base_url", "invalid base URL")
	}
	if c.Embedder.Dimensions < 1 {
		add("embedder.dimensions", "dimensions must be positive")
	}
	if c.Embedder.BatchSize < 1 {
		add("embedder.batch_size", "batch_size must be positive")
	}
	if c.Embedder.RateLimit < 0 {
		add("embedder.rate_limit", "rate_limit cannot be negative")
	}

	// Database
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			add("database.url", "invalid database URL")
		}
	}
	if c.Database.MaxConns < 0 {
		add("database.max_conns", "max_conns cannot be negative")
	}

	// Chunker
	if c.Chunker.MinChunkSize < 0 || c.Chunker.MaxChunkSize < 1 {
		add("chunker.max_chunk_size", "chunk sizes must be positive")
	} else if c.Chunker.MinChunkSize >= c.Chunker.MaxChunkSize {
		add("chunker.min_chunk_size", "min_chunk_size must be less than max_chunk_size")
	}
	if c.Chunker.SectionMinSize < 0 || c.Chunker.ReferenceMinSize < 0 {
		add("chunker.section_min_size", "section sizes cannot be negative")
	}

	// Ingest
	if c.Ingest.Workers < 1 {
		add("ingest.workers", "workers must be positive")
	}
	if c.Ingest.BatchSize < 1 {
		add("ingest.batch_size", "batch_size must be positive")
	}
	if c.Ingest.RateLimit <= 0 {
		add("ingest.rate_limit", "rate_limit must be positive")
	}

	// Search
	if c.Search.DecayRate <= 0 || c.Search.DecayRate > 1 {
		add("search.decay_rate", "decay_rate must be in (0, 1]")
	}
	if c.Search.DefaultDaysBack < 0 {
		add("search.default_days_back", "default_days_back cannot be negative")
	}
	if c.Search.SemanticWeight < 0 || c.Search.LexicalWeight < 0 {
		add("search.semantic_weight", "weights cannot be negative")
	}
	if c.Search.ScoreScale <= 0 {
		add("search.score_scale", "score_scale must be positive")
	}
	if c.Search.MaxDistance <= 0 || c.Search.MaxDistance > 2 {
		add("search.max_distance", "max_distance must be in (0, 2]")
	}
	if c.Search.CandidateLimit < 0 || c.Search.HybridCandidates < 0 || c.Search.DefaultLimit < 0 {
		add("search.default_limit", "limits cannot be negative")
	}

	// Cluster
	if c.Cluster.DistanceThreshold <= 0 || c.Cluster.DistanceThreshold > 1 {
		add("cluster.distance_threshold", "distance_threshold must be in (0, 1]")
	}
	if c.Cluster.MinSize < 1 {
		add("cluster.min_size", "min_size must be positive")
	}
	if c.Cluster.LabelWords < 1 {
		add("cluster.label_words", "label_words must be positive")
	}

	// Server
	if c.Server.Addr == "" {
		add("server.addr", "listen address is required")
	}

	return errors
}
