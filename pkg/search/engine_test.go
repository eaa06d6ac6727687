package search_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/testutil"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/search"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -n)
}

type fixture struct {
	store    *testutil.MemoryStore
	embedder *testutil.HashEmbedder
	engine   *search.Engine
}

func newFixture(t *testing.T, config search.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewMemoryStore(),
		embedder: testutil.NewHashEmbedder(4),
	}
	engine, err := search.NewEngine(f.store, f.embedder, config, search.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *fixture) add(org string, date time.Time, text string, embedding ...float32) int64 {
	_, ids := f.store.AddParent(
		models.Parent{Org: org, Title: text, CallDate: date},
		models.Chunk{Index: 0, Text: text, Embedding: embedding},
	)
	return ids[0]
}

func TestSemantic_FresherHitRanksFirst(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["pricing"] = []float32{1, 0, 0, 0}

	old := f.add("Acme", daysAgo(30), "pricing discussion", 1, 0, 0, 0)
	fresh := f.add("Acme", daysAgo(0), "pricing discussion", 1, 0, 0, 0)

	hits, err := f.engine.Semantic(context.Background(), "pricing", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, fresh, hits[0].ChunkID)
	assert.Equal(t, old, hits[1].ChunkID)
	assert.Equal(t, 0, hits[0].DaysOld)
	assert.Equal(t, 30, hits[1].DaysOld)
	assert.InDelta(t, 1.0, hits[0].RecencyScore, 1e-9)
	assert.InDelta(t, math.Pow(0.95, 30), hits[1].RecencyScore, 1e-9)
}

func TestSemantic_FiltersAndLimit(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["roadmap"] = []float32{1, 0, 0, 0}

	f.add("Acme", daysAgo(1), "a", 1, 0, 0, 0)
	f.add("Acme", daysAgo(2), "b", 0.9, 0.1, 0, 0)
	f.add("Globex", daysAgo(1), "c", 1, 0, 0, 0)
	f.add("Acme", daysAgo(40), "d", 1, 0, 0, 0)

	hits, err := f.engine.Semantic(context.Background(), "roadmap", search.Options{Org: "Acme"})
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, "Acme", h.Org)
	}

	hits, err = f.engine.Semantic(context.Background(), "roadmap", search.Options{Org: "Acme", DaysBack: search.Days(7)})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = f.engine.Semantic(context.Background(), "roadmap", search.Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSemantic_FutureDatesAreNotNegative(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["plan"] = []float32{1, 0, 0, 0}
	f.add("Acme", now.AddDate(0, 0, 3), "plan", 1, 0, 0, 0)

	hits, err := f.engine.Semantic(context.Background(), "plan", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].DaysOld)
}

func TestSemantic_InvalidQuery(t *testing.T) {
	f := newFixture(t, search.Config{})

	for _, q := range []string{"", "   \n\t", "bad\x00query", "\xff\xfe"} {
		_, err := f.engine.Semantic(context.Background(), q, search.Options{})
		assert.ErrorIs(t, err, types.ErrInvalidInput, "query %q", q)
	}
	assert.Zero(t, f.embedder.Calls())

	_, err := f.engine.Semantic(context.Background(), "ok", search.Options{Limit: -1})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = f.engine.Semantic(context.Background(), "ok", search.Options{DecayRate: 1.5})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSemantic_EmbedderUnavailable(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Err = errors.New("connection refused")

	_, err := f.engine.Semantic(context.Background(), "pricing", search.Options{})
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)

	_, err = f.engine.Hybrid(context.Background(), "pricing", search.Options{})
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable, "no lexical fallback")
}

func TestSemantic_StoreUnavailable(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.store.Err = types.ErrDependencyUnavailable

	_, err := f.engine.Semantic(context.Background(), "pricing", search.Options{})
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)
}

func TestRecent(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["budget"] = []float32{1, 0, 0, 0}
	f.add("Acme", daysAgo(60), "budget", 1, 0, 0, 0)

	result, err := f.engine.Recent(context.Background(), "budget", search.Options{})
	require.NoError(t, err)
	assert.Equal(t, 21, result.DaysBack)
	assert.Empty(t, result.Hits)
	assert.True(t, result.NeedsExpansion)

	result, err = f.engine.Recent(context.Background(), "budget", search.Options{DaysBack: search.Days(90)})
	require.NoError(t, err)
	assert.Equal(t, 90, result.DaysBack)
	assert.Len(t, result.Hits, 1)
	assert.False(t, result.NeedsExpansion)
}

func TestHybrid_Fusion(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["billing migration"] = []float32{1, 0, 0, 0}

	both := f.add("Acme", daysAgo(0), "billing migration", 1, 0, 0, 0)
	lexicalOnly := f.add("Acme", daysAgo(0), "billing migration billing", 0, 1, 0, 0)
	semanticOnly := f.add("Acme", daysAgo(10), "unrelated words", 1, 0, 0, 0)

	hits, err := f.engine.Hybrid(context.Background(), "billing migration", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	byID := map[int64]float64{}
	for _, h := range hits {
		byID[h.ChunkID] = h.CombinedScore
	}

	// semantic 8, fts 0.2*8
	assert.InDelta(t, 8*0.7+1.6*0.3, byID[both], 1e-9)
	// fts only: 0.3*8
	assert.InDelta(t, 2.4*0.3, byID[lexicalOnly], 1e-9)
	// semantic only, ten days old
	assert.InDelta(t, 8*0.7*math.Pow(0.95, 10), byID[semanticOnly], 1e-9)

	assert.Equal(t, both, hits[0].ChunkID)
	assert.Equal(t, semanticOnly, hits[1].ChunkID)
	assert.Equal(t, lexicalOnly, hits[2].ChunkID)
	assert.Equal(t, 1.0, hits[2].Distance)
	assert.Zero(t, hits[2].SemanticScore)
}

func TestHybrid_WeightOverride(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["billing"] = []float32{1, 0, 0, 0}
	id := f.add("Acme", daysAgo(0), "billing", 1, 0, 0, 0)

	hits, err := f.engine.Hybrid(context.Background(), "billing", search.Options{
		SemanticWeight: search.Weight(0),
		LexicalWeight:  search.Weight(1),
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ChunkID)
	assert.InDelta(t, 0.1*8, hits[0].CombinedScore, 1e-9)
}

func TestHybrid_DistanceCeiling(t *testing.T) {
	f := newFixture(t, search.Config{})
	f.embedder.Vectors["pricing"] = []float32{1, 0, 0, 0}
	f.add("Acme", daysAgo(0), "something else", 0, 1, 0, 0)

	hits, err := f.engine.Hybrid(context.Background(), "pricing", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNewEngine_Validation(t *testing.T) {
	store := testutil.NewMemoryStore()
	embedder := testutil.NewHashEmbedder(4)

	_, err := search.NewEngine(nil, embedder, search.Config{})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = search.NewEngine(store, embedder, search.Config{DecayRate: 1.2})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	engine, err := search.NewEngine(store, embedder, search.Config{})
	require.NoError(t, err)
	assert.Equal(t, search.DefaultConfig(), engine.Config())
}
