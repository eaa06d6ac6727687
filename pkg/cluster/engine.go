package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

// Config holds clustering parameters. Zero values are replaced by defaults.
type Config struct {
	DistanceThreshold float64
	MinSize           int
	LabelWords        int
	ExcludeNames      []string // extra label stop words
	SummaryMembers    int      // member texts sent to the summarizer
}

func DefaultConfig() Config {
	return Config{
		DistanceThreshold: 0.3,
		MinSize:           2,
		LabelWords:        3,
		SummaryMembers:    8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DistanceThreshold == 0 {
		c.DistanceThreshold = d.DistanceThreshold
	}
	if c.MinSize == 0 {
		c.MinSize = d.MinSize
	}
	if c.LabelWords == 0 {
		c.LabelWords = d.LabelWords
	}
	if c.SummaryMembers == 0 {
		c.SummaryMembers = d.SummaryMembers
	}
	return c
}

func validThreshold(t float64) error {
	if t <= 0 || t > 1 {
		return fmt.Errorf("%w: distance threshold must be in (0, 1], got %v", types.ErrInvalidInput, t)
	}
	return nil
}

// Summarizer condenses member texts into a short description.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
}

// Engine computes, stores and reads chunk clusters.
type Engine struct {
	store      types.ClusterStore
	config     Config
	stop       StopSet
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSummarizer enables Summarize.
func WithSummarizer(s Summarizer) Option {
	return func(e *Engine) {
		e.summarizer = s
	}
}

// WithClock sets the clock used to timestamp runs.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store types.ClusterStore, config Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: cluster engine needs a store", types.ErrInvalidInput)
	}
	config = config.withDefaults()
	if err := validThreshold(config.DistanceThreshold); err != nil {
		return nil, err
	}
	if config.MinSize < 0 || config.LabelWords < 0 || config.SummaryMembers < 0 {
		return nil, fmt.Errorf("%w: cluster sizes cannot be negative", types.ErrInvalidInput)
	}

	e := &Engine{
		store:  store,
		config: config,
		stop:   NewStopSet(config.ExcludeNames...),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "cluster")
	return e, nil
}

func (e *Engine) Config() Config {
	return e.config
}

// Compute clusters the embedded chunks of scope. A zero threshold uses the
// configured default.
func (e *Engine) Compute(ctx context.Context, scope models.Scope, threshold float64) (models.Clustering, error) {
	if threshold == 0 {
		threshold = e.config.DistanceThreshold
	}
	if err := validThreshold(threshold); err != nil {
		return models.Clustering{}, err
	}

	rows, err := e.store.ChunkEmbeddings(ctx, scope)
	if err != nil {
		return models.Clustering{}, fmt.Errorf("load embeddings: %w", err)
	}

	vectors := make([][]float32, len(rows))
	for i, r := range rows {
		if !finite(r.Embedding) {
			return models.Clustering{}, fmt.Errorf("%w: chunk %d has a non-finite embedding", types.ErrUnparseableOutput, r.ID)
		}
		vectors[i] = r.Embedding
	}

	start := time.Now()
	labels := Agglomerate(vectors, threshold)

	clusters := [][]int64{}
	for i, label := range labels {
		if label == len(clusters) {
			clusters = append(clusters, nil)
		}
		clusters[label] = append(clusters[label], rows[i].ID)
	}

	e.logger.Debug("clusters computed",
		"scope", scope.Key(),
		"chunks", len(rows),
		"clusters", len(clusters),
		"elapsed", time.Since(start))

	return models.Clustering{Scope: scope, Threshold: threshold, Clusters: clusters}, nil
}

// Store recomputes the clusters of scope and replaces its stored
// assignments. Assignments of other scopes are untouched.
func (e *Engine) Store(ctx context.Context, scope models.Scope, threshold float64) (models.ClusterRun, error) {
	clustering, err := e.Compute(ctx, scope, threshold)
	if err != nil {
		return models.ClusterRun{}, err
	}

	run := models.ClusterRun{
		ID:        uuid.NewString(),
		Scope:     scope,
		Threshold: clustering.Threshold,
		Clusters:  len(clustering.Clusters),
		Chunks:    clustering.Size(),
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.ReplaceAssignments(ctx, run, clustering.Assignments()); err != nil {
		return models.ClusterRun{}, fmt.Errorf("store assignments: %w", err)
	}

	e.logger.Info("clusters stored", "scope", scope.Key(), "run", run.ID, "clusters", run.Clusters, "chunks", run.Chunks)
	return run, nil
}

// LatestRun returns the last stored run of scope, or types.ErrNotFound.
func (e *Engine) LatestRun(ctx context.Context, scope models.Scope) (*models.ClusterRun, error) {
	return e.store.LatestRun(ctx, scope)
}

// Details lists the stored clusters of scope with at least minSize members,
// largest first. A zero minSize uses the configured default.
func (e *Engine) Details(ctx context.Context, scope models.Scope, minSize int) ([]models.ClusterDetail, error) {
	if minSize < 0 {
		return nil, fmt.Errorf("%w: min size cannot be negative", types.ErrInvalidInput)
	} else if minSize == 0 {
		minSize = e.config.MinSize
	}

	sizes, err := e.store.ClusterSizes(ctx, scope, minSize)
	if err != nil {
		return nil, fmt.Errorf("cluster sizes: %w", err)
	}

	details := make([]models.ClusterDetail, 0, len(sizes))
	for _, s := range sizes {
		members, err := e.store.ClusterMembers(ctx, scope, s.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("cluster %d members: %w", s.ClusterID, err)
		}
		details = append(details, models.ClusterDetail{
			ClusterID: s.ClusterID,
			Size:      s.Size,
			Label:     e.Label(memberTexts(members)),
			Members:   members,
		})
	}
	return details, nil
}

// ExpandOptions scope an expansion. The zero value expands over the
// corpus-wide clusters.
type ExpandOptions struct {
	Scope   models.Scope
	Exclude []int64
}

// Expand returns the other members of the clusters the seed chunks belong
// to, newest call first. Seeds and opts.Exclude never appear in the result.
// Seeds without stored assignments expand to nothing.
func (e *Engine) Expand(ctx context.Context, seeds []int64, opts ExpandOptions) ([]models.ClusterMember, error) {
	if len(seeds) == 0 {
		return []models.ClusterMember{}, nil
	}

	clusterIDs, err := e.store.ClusterIDsFor(ctx, opts.Scope, seeds)
	if err != nil {
		return nil, fmt.Errorf("seed clusters: %w", err)
	}
	if len(clusterIDs) == 0 {
		return []models.ClusterMember{}, nil
	}

	exclude := make([]int64, 0, len(seeds)+len(opts.Exclude))
	seen := map[int64]bool{}
	for _, ids := range [][]int64{seeds, opts.Exclude} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				exclude = append(exclude, id)
			}
		}
	}

	members, err := e.store.ChunksInClusters(ctx, opts.Scope, clusterIDs, exclude)
	if err != nil {
		return nil, fmt.Errorf("cluster chunks: %w", err)
	}

	e.logger.Debug("expanded by cluster", "seeds", len(seeds), "clusters", len(clusterIDs), "chunks", len(members))
	return members, nil
}

// Label names texts using the engine's stop words and label length.
func (e *Engine) Label(texts []string) string {
	return Label(texts, e.config.LabelWords, e.stop)
}

// Summarize asks the configured summarizer for a short description of a
// cluster. Empty or unusable model output surfaces as
// types.ErrUnparseableOutput.
func (e *Engine) Summarize(ctx context.Context, detail models.ClusterDetail) (string, error) {
	if e.summarizer == nil {
		return "", fmt.Errorf("%w: no summarizer configured", types.ErrDependencyUnavailable)
	}

	texts := memberTexts(detail.Members)
	if len(texts) > e.config.SummaryMembers {
		texts = texts[:e.config.SummaryMembers]
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: cluster %d has no members", types.ErrInvalidInput, detail.ClusterID)
	}

	summary, err := e.summarizer.Summarize(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("summarize cluster %d: %w", detail.ClusterID, err)
	}
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary for cluster %d", types.ErrUnparseableOutput, detail.ClusterID)
	}
	return summary, nil
}

func finite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

func memberTexts(members []models.ClusterMember) []string {
	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.Text
	}
	return texts
}
