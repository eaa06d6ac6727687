package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xhad/recall/pkg/chunker"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/ingest"
	"github.com/xhad/recall/pkg/llm"
	"github.com/xhad/recall/pkg/search"
	"github.com/xhad/recall/pkg/store"
)

type Config struct {
	LLM struct {
		Backend     string  `yaml:"backend"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedder struct {
		Backend    string  `yaml:"backend"`
		BaseURL    string  `yaml:"base_url"`
		Model      string  `yaml:"model"`
		APIKey     string  `yaml:"api_key"`
		Dimensions int     `yaml:"dimensions"`
		BatchSize  int     `yaml:"batch_size"`
		RateLimit  float64 `yaml:"rate_limit"`
	} `yaml:"embedder"`

	Database struct {
		URL      string `yaml:"url"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`

	Chunker struct {
		MinChunkSize     int  `yaml:"min_chunk_size"`
		MaxChunkSize     int  `yaml:"max_chunk_size"`
		SectionMinSize   int  `yaml:"section_min_size"`
		ReferenceMinSize int  `yaml:"reference_min_size"`
		ColonSpeakerTags bool `yaml:"colon_speaker_tags"`
	} `yaml:"chunker"`

	Ingest struct {
		Workers   int     `yaml:"workers"`
		BatchSize int     `yaml:"batch_size"`
		RateLimit float64 `yaml:"rate_limit"` // URL fetches per second
	} `yaml:"ingest"`

	Search struct {
		DecayRate        float64 `yaml:"decay_rate"`
		DefaultDaysBack  int     `yaml:"default_days_back"`
		SemanticWeight   float64 `yaml:"semantic_weight"`
		LexicalWeight    float64 `yaml:"lexical_weight"`
		ScoreScale       float64 `yaml:"score_scale"`
		MaxDistance      float64 `yaml:"max_distance"`
		CandidateLimit   int     `yaml:"candidate_limit"`
		HybridCandidates int     `yaml:"hybrid_candidates"`
		DefaultLimit     int     `yaml:"default_limit"`
	} `yaml:"search"`

	Cluster struct {
		DistanceThreshold float64  `yaml:"distance_threshold"`
		MinSize           int      `yaml:"min_size"`
		LabelWords        int      `yaml:"label_words"`
		ExcludeNames      []string `yaml:"exclude_names"`
		SummaryMembers    int      `yaml:"summary_members"`
	} `yaml:"cluster"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/recall/config.yaml"),
			"/etc/recall/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// loadDotEnv exports the variables of a .env file. A missing file is not an
// error; variables already set in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Backend == "" {
		config.LLM.Backend = llm.BackendOllama
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 200
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedder.Backend == "" {
		config.Embedder.Backend = llm.BackendOllama
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.Dimensions == 0 {
		config.Embedder.Dimensions = 768
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}

	if config.Chunker.MinChunkSize == 0 {
		config.Chunker.MinChunkSize = chunker.DefaultMinChunkSize
	}
	if config.Chunker.MaxChunkSize == 0 {
		config.Chunker.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if config.Chunker.SectionMinSize == 0 {
		config.Chunker.SectionMinSize = chunker.DefaultSectionMinSize
	}
	if config.Chunker.ReferenceMinSize == 0 {
		config.Chunker.ReferenceMinSize = chunker.DefaultReferenceMinSize
	}

	if config.Ingest.Workers == 0 {
		config.Ingest.Workers = 4
	}
	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 16
	}
	if config.Ingest.RateLimit == 0 {
		config.Ingest.RateLimit = 2.0
	}

	s := search.DefaultConfig()
	if config.Search.DecayRate == 0 {
		config.Search.DecayRate = s.DecayRate
	}
	if config.Search.DefaultDaysBack == 0 {
		config.Search.DefaultDaysBack = s.DefaultDaysBack
	}
	if config.Search.SemanticWeight == 0 && config.Search.LexicalWeight == 0 {
		config.Search.SemanticWeight = s.SemanticWeight
		config.Search.LexicalWeight = s.LexicalWeight
	}
	if config.Search.ScoreScale == 0 {
		config.Search.ScoreScale = s.ScoreScale
	}
	if config.Search.MaxDistance == 0 {
		config.Search.MaxDistance = s.MaxDistance
	}
	if config.Search.HybridCandidates == 0 {
		config.Search.HybridCandidates = s.HybridCandidates
	}
	if config.Search.DefaultLimit == 0 {
		config.Search.DefaultLimit = s.DefaultLimit
	}

	c := cluster.DefaultConfig()
	if config.Cluster.DistanceThreshold == 0 {
		config.Cluster.DistanceThreshold = c.DistanceThreshold
	}
	if config.Cluster.MinSize == 0 {
		config.Cluster.MinSize = c.MinSize
	}
	if config.Cluster.LabelWords == 0 {
		config.Cluster.LabelWords = c.LabelWords
	}
	if config.Cluster.SummaryMembers == 0 {
		config.Cluster.SummaryMembers = c.SummaryMembers
	}

	if config.Server.Addr == "" {
		config.Server.Addr = "127.0.0.1:8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		if config.Embedder.Backend == "" || config.Embedder.Backend == llm.BackendOllama {
			config.Embedder.BaseURL = baseURL
		}
	}
	if baseURL := os.Getenv("EMBED_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if apiKey := os.Getenv("EMBED_API_KEY"); apiKey != "" {
		config.Embedder.APIKey = apiKey
	}
	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}

func (c *Config) EmbedderConfig() llm.EmbedderConfig {
	return llm.EmbedderConfig{
		Backend:    c.Embedder.Backend,
		Model:      c.Embedder.Model,
		BaseURL:    c.Embedder.BaseURL,
		APIKey:     c.Embedder.APIKey,
		Dimensions: c.Embedder.Dimensions,
		BatchSize:  c.Embedder.BatchSize,
		RateLimit:  c.Embedder.RateLimit,
	}
}

func (c *Config) SummarizerConfig() llm.SummarizerConfig {
	return llm.SummarizerConfig{
		Backend:     c.LLM.Backend,
		Model:       c.LLM.Model,
		BaseURL:     c.LLM.BaseURL,
		APIKey:      c.LLM.APIKey,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
	}
}

func (c *Config) StoreConfig() store.VectorStoreConfig {
	return store.VectorStoreConfig{
		ConnString: c.Database.URL,
		VectorDim:  c.Embedder.Dimensions,
		MaxConns:   c.Database.MaxConns,
	}
}

func (c *Config) ChunkerConfig() chunker.ChunkerConfig {
	return chunker.ChunkerConfig{
		MinChunkSize:     c.Chunker.MinChunkSize,
		MaxChunkSize:     c.Chunker.MaxChunkSize,
		SectionMinSize:   c.Chunker.SectionMinSize,
		ReferenceMinSize: c.Chunker.ReferenceMinSize,
		ColonSpeakerTags: c.Chunker.ColonSpeakerTags,
	}
}

func (c *Config) LoaderConfig() ingest.LoaderConfig {
	return ingest.LoaderConfig{RateLimit: c.Ingest.RateLimit}
}

func (c *Config) SearchConfig() search.Config {
	return search.Config{
		DecayRate:        c.Search.DecayRate,
		DefaultDaysBack:  c.Search.DefaultDaysBack,
		SemanticWeight:   c.Search.SemanticWeight,
		LexicalWeight:    c.Search.LexicalWeight,
		ScoreScale:       c.Search.ScoreScale,
		MaxDistance:      c.Search.MaxDistance,
		CandidateLimit:   c.Search.CandidateLimit,
		HybridCandidates: c.Search.HybridCandidates,
		DefaultLimit:     c.Search.DefaultLimit,
	}
}

func (c *Config) ClusterConfig() cluster.Config {
	return cluster.Config{
		DistanceThreshold: c.Cluster.DistanceThreshold,
		MinSize:           c.Cluster.MinSize,
		LabelWords:        c.Cluster.LabelWords,
		ExcludeNames:      c.Cluster.ExcludeNames,
		SummaryMembers:    c.Cluster.SummaryMembers,
	}
}
