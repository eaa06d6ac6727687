package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// Config holds the scoring parameters of an Engine. Zero values are replaced
// by defaults.
type Config struct {
	DecayRate        float64 // per-day relevance multiplier, in (0, 1]
	DefaultDaysBack  int     // window used by Recent
	SemanticWeight   float64
	LexicalWeight    float64
	ScoreScale       float64 // multiplier applied to both hybrid scores
	MaxDistance      float64 // hybrid semantic distance ceiling
	CandidateLimit   int     // semantic candidate pool, 0 means every chunk
	HybridCandidates int     // top-K taken from each hybrid side
	DefaultLimit     int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		DecayRate:        0.95,
		DefaultDaysBack:  21,
		SemanticWeight:   0.7,
		LexicalWeight:    0.3,
		ScoreScale:       8.0,
		MaxDistance:      0.8,
		HybridCandidates: 100,
		DefaultLimit:     10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DecayRate == 0 {
		c.DecayRate = d.DecayRate
	}
	if c.DefaultDaysBack == 0 {
		c.DefaultDaysBack = d.DefaultDaysBack
	}
	if c.SemanticWeight == 0 && c.LexicalWeight == 0 {
		c.SemanticWeight = d.SemanticWeight
		c.LexicalWeight = d.LexicalWeight
	}
	if c.ScoreScale == 0 {
		c.ScoreScale = d.ScoreScale
	}
	if c.MaxDistance == 0 {
		c.MaxDistance = d.MaxDistance
	}
	if c.HybridCandidates == 0 {
		c.HybridCandidates = d.HybridCandidates
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = d.DefaultLimit
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.DecayRate <= 0 || c.DecayRate > 1:
		return fmt.Errorf("%w: decay rate must be in (0, 1], got %v", types.ErrInvalidInput, c.DecayRate)
	case c.DefaultDaysBack < 0:
		return fmt.Errorf("%w: default days back cannot be negative", types.ErrInvalidInput)
	case c.SemanticWeight < 0 || c.LexicalWeight < 0:
		return fmt.Errorf("%w: weights cannot be negative", types.ErrInvalidInput)
	case c.ScoreScale <= 0:
		return fmt.Errorf("%w: score scale must be positive", types.ErrInvalidInput)
	case c.MaxDistance <= 0 || c.MaxDistance > 2:
		return fmt.Errorf("%w: max distance must be in (0, 2], got %v", types.ErrInvalidInput, c.MaxDistance)
	case c.CandidateLimit < 0 || c.HybridCandidates < 0 || c.DefaultLimit < 0:
		return fmt.Errorf("%w: limits cannot be negative", types.ErrInvalidInput)
	}
	return nil
}

// Options narrows and tunes a single search call.
type Options struct {
	Org     string
	Project string
	Limit   int

	// DaysBack restricts hits to calls on or after today minus DaysBack.
	// nil means unrestricted, except for Recent which applies its default.
	DaysBack *int

	// DecayRate overrides Config.DecayRate when non-zero.
	DecayRate float64

	// SemanticWeight and LexicalWeight override the hybrid weights when set.
	SemanticWeight *float64
	LexicalWeight  *float64
}

// Days is a convenience for Options.DaysBack.
func Days(n int) *int {
	return &n
}

// Weight is a convenience for the Options weight overrides.
func Weight(w float64) *float64 {
	return &w
}

// Engine ranks chunks for a natural-language query.
type Engine struct {
	store    types.SearchStore
	embedder types.Embedder
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now when computing hit ages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store types.SearchStore, embedder types.Embedder, config Config, opts ...Option) (*Engine, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("%w: search engine needs a store and an embedder", types.ErrInvalidInput)
	}
	config = config.withDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

type settings struct {
	filter         models.Filter
	limit          int
	decay          float64
	semanticWeight float64
	lexicalWeight  float64
	today          time.Time
}

func (e *Engine) resolve(opts Options) (settings, error) {
	s := settings{
		filter:         models.Filter{Org: opts.Org, Project: opts.Project},
		limit:          e.config.DefaultLimit,
		decay:          e.config.DecayRate,
		semanticWeight: e.config.SemanticWeight,
		lexicalWeight:  e.config.LexicalWeight,
		today:          e.now(),
	}

	if opts.Limit < 0 {
		return s, fmt.Errorf("%w: limit cannot be negative", types.ErrInvalidInput)
	} else if opts.Limit > 0 {
		s.limit = opts.Limit
	}

	if opts.DecayRate != 0 {
		if opts.DecayRate < 0 || opts.DecayRate > 1 {
			return s, fmt.Errorf("%w: decay rate must be in (0, 1], got %v", types.ErrInvalidInput, opts.DecayRate)
		}
		s.decay = opts.DecayRate
	}

	if opts.SemanticWeight != nil {
		s.semanticWeight = *opts.SemanticWeight
	}
	if opts.LexicalWeight != nil {
		s.lexicalWeight = *opts.LexicalWeight
	}
	if s.semanticWeight < 0 || s.lexicalWeight < 0 {
		return s, fmt.Errorf("%w: weights cannot be negative", types.ErrInvalidInput)
	}

	if opts.DaysBack != nil {
		if *opts.DaysBack < 0 {
			return s, fmt.Errorf("%w: days back cannot be negative", types.ErrInvalidInput)
		}
		since := dateOf(s.today).AddDate(0, 0, -*opts.DaysBack)
		s.filter.Since = &since
	}
	return s, nil
}

func validateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is empty", types.ErrInvalidInput)
	}
	if !utf8.ValidString(query) || strings.ContainsRune(query, 0) {
		return fmt.Errorf("%w: query is not valid text", types.ErrInvalidInput)
	}
	return nil
}

func (e *Engine) embed(ctx context.Context, query string) ([]float32, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err == nil {
		return embedding, nil
	}
	if ctx.Err() != nil || errors.Is(err, types.ErrDependencyUnavailable) {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return nil, fmt.Errorf("%w: embed query: %w", types.ErrDependencyUnavailable, err)
}

func newHit(c models.Candidate, daysOld int) models.SearchHit {
	return models.SearchHit{
		ChunkID:  c.ChunkID,
		ParentID: c.ParentID,
		Index:    c.Index,
		Text:     c.Text,
		Speaker:  c.Speaker,
		Org:      c.Org,
		Project:  c.Project,
		Title:    c.Title,
		Summary:  c.Summary,
		CallDate: c.CallDate,
		DaysOld:  daysOld,
		Distance: c.Distance,
	}
}

// Semantic ranks chunks by similarity to query decayed by age. Hits are
// ordered by recency score, then distance, then chunk ID.
func (e *Engine) Semantic(ctx context.Context, query string, opts Options) ([]models.SearchHit, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	s, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}

	embedding, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := e.store.SemanticCandidates(ctx, embedding, s.filter, 0, e.config.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("semantic candidates: %w", err)
	}

	hits := make([]models.SearchHit, 0, len(candidates))
	for _, c := range candidates {
		hit := newHit(c, DaysOld(s.today, c.CallDate))
		hit.RecencyScore = RecencyScore(c.Distance, hit.DaysOld, s.decay)
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.RecencyScore != b.RecencyScore {
			return a.RecencyScore > b.RecencyScore
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.ChunkID < b.ChunkID
	})
	if len(hits) > s.limit {
		hits = hits[:s.limit]
	}

	e.logger.Debug("semantic search", "candidates", len(candidates), "hits", len(hits), "org", opts.Org, "project", opts.Project)
	return hits, nil
}

// Recent runs Semantic over a bounded window, Config.DefaultDaysBack unless
// opts.DaysBack is set. NeedsExpansion reports that the window held nothing.
func (e *Engine) Recent(ctx context.Context, query string, opts Options) (models.RecentResult, error) {
	days := e.config.DefaultDaysBack
	if opts.DaysBack != nil {
		days = *opts.DaysBack
	}
	opts.DaysBack = &days

	hits, err := e.Semantic(ctx, query, opts)
	if err != nil {
		return models.RecentResult{}, err
	}
	return models.RecentResult{
		Hits:           hits,
		DaysBack:       days,
		NeedsExpansion: len(hits) == 0,
	}, nil
}

// Hybrid fuses the semantic and lexical top candidates. A chunk found by
// only one side scores zero on the other.
func (e *Engine) Hybrid(ctx context.Context, query string, opts Options) ([]models.SearchHit, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	s, err := e.resolve(opts)
	if err != nil {
		return nil, err
	}

	embedding, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	semantic, err := e.store.SemanticCandidates(ctx, embedding, s.filter, e.config.MaxDistance, e.config.HybridCandidates)
	if err != nil {
		return nil, fmt.Errorf("semantic candidates: %w", err)
	}
	lexical, err := e.store.LexicalCandidates(ctx, query, s.filter, e.config.HybridCandidates)
	if err != nil {
		return nil, fmt.Errorf("lexical candidates: %w", err)
	}

	scale := e.config.ScoreScale
	byID := make(map[int64]*models.SearchHit, len(semantic)+len(lexical))
	var order []int64

	for _, c := range semantic {
		hit := newHit(c, DaysOld(s.today, c.CallDate))
		hit.SemanticScore = (1 - c.Distance) * scale
		byID[c.ChunkID] = &hit
		order = append(order, c.ChunkID)
	}
	for _, c := range lexical {
		if hit, ok := byID[c.ChunkID]; ok {
			hit.LexicalScore = c.LexicalRank * scale
			continue
		}
		hit := newHit(c, DaysOld(s.today, c.CallDate))
		// Not among the semantic candidates; treat as dissimilar.
		hit.Distance = 1
		hit.LexicalScore = c.LexicalRank * scale
		byID[c.ChunkID] = &hit
		order = append(order, c.ChunkID)
	}

	hits := make([]models.SearchHit, 0, len(order))
	for _, id := range order {
		hit := byID[id]
		hit.CombinedScore = CombinedScore(hit.SemanticScore, hit.LexicalScore,
			s.semanticWeight, s.lexicalWeight, hit.DaysOld, s.decay)
		hits = append(hits, *hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].CombinedScore != hits[j].CombinedScore {
			return hits[i].CombinedScore > hits[j].CombinedScore
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > s.limit {
		hits = hits[:s.limit]
	}

	e.logger.Debug("hybrid search",
		"semantic_candidates", len(semantic),
		"lexical_candidates", len(lexical),
		"hits", len(hits))
	return hits, nil
}
