package cluster_test

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
	"github.com/xhad/recall/pkg/cluster"
)

type corpus struct {
	store   *testutil.MemoryStore
	engine  *cluster.Engine
	callA   int64
	callB   int64
	billing []int64 // three chunks about billing
	hiring  []int64 // two chunks about hiring
}

func newCorpus(t *testing.T, opts ...cluster.Option) *corpus {
	t.Helper()
	store := testutil.NewMemoryStore()

	callA, idsA := store.AddParent(
		models.Parent{Org: "Acme", Title: "Planning", CallDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
		models.Chunk{Index: 0, Text: "Billing invoices are late again", Embedding: []float32{1, 0, 0, 0}},
		models.Chunk{Index: 1, Text: "Hiring plan for backend engineers", Embedding: []float32{0, 0, 1, 0}},
		models.Chunk{Index: 2, Text: "Billing export fails for invoices", Embedding: []float32{0.99, 0.1, 0, 0}},
	)
	callB, idsB := store.AddParent(
		models.Parent{Org: "Acme", Title: "Followup", CallDate: time.Date(2025, 5, 8, 0, 0, 0, 0, time.UTC)},
		models.Chunk{Index: 0, Text: "Hiring pipeline needs recruiters", Embedding: []float32{0, 0, 0.95, 0.2}},
		models.Chunk{Index: 1, Text: "Invoices billing retry logic", Embedding: []float32{0.98, 0.05, 0.1, 0}},
	)

	engine, err := cluster.NewEngine(store, cluster.Config{},
		append([]cluster.Option{cluster.WithClock(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) })}, opts...)...)
	require.NoError(t, err)

	return &corpus{
		store:   store,
		engine:  engine,
		callA:   callA,
		callB:   callB,
		billing: []int64{idsA[0], idsA[2], idsB[1]},
		hiring:  []int64{idsA[1], idsB[0]},
	}
}

func TestCompute_ThreePlusTwo(t *testing.T) {
	c := newCorpus(t)

	clustering, err := c.engine.Compute(context.Background(), models.GlobalScope, 0.3)
	require.NoError(t, err)

	assert.Equal(t, 0.3, clustering.Threshold)
	assert.Equal(t, [][]int64{c.billing, c.hiring}, clustering.Clusters)
	assert.Equal(t, 5, clustering.Size())
}

func TestCompute_Idempotent(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	first, err := c.engine.Compute(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	second, err := c.engine.Compute(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCompute_EdgeCases(t *testing.T) {
	store := testutil.NewMemoryStore()
	engine, err := cluster.NewEngine(store, cluster.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	empty, err := engine.Compute(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Clusters)

	_, ids := store.AddParent(
		models.Parent{Org: "Acme", CallDate: time.Now()},
		models.Chunk{Index: 0, Text: "only", Embedding: []float32{1, 0}},
		models.Chunk{Index: 1, Text: "not embedded"},
	)
	single, err := engine.Compute(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{ids[0]}}, single.Clusters)

	for _, threshold := range []float64{-0.1, 1.5} {
		_, err = engine.Compute(ctx, models.GlobalScope, threshold)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	}
}

func TestCompute_RejectsNonFiniteEmbedding(t *testing.T) {
	c := newCorpus(t)
	c.store.AddParent(
		models.Parent{Org: "Acme", CallDate: time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC)},
		models.Chunk{Index: 0, Text: "broken vector", Embedding: []float32{float32(math.NaN()), 1, 0, 0}},
	)

	_, err := c.engine.Compute(context.Background(), models.GlobalScope, 0)
	assert.ErrorIs(t, err, types.ErrUnparseableOutput)

	_, err = c.engine.Store(context.Background(), models.GlobalScope, 0)
	assert.ErrorIs(t, err, types.ErrUnparseableOutput)
	_, err = c.engine.LatestRun(context.Background(), models.GlobalScope)
	assert.ErrorIs(t, err, types.ErrNotFound, "a failed run stores nothing")
}

func TestStore_ScopesAreIndependent(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	_, err := c.engine.LatestRun(ctx, models.GlobalScope)
	assert.ErrorIs(t, err, types.ErrNotFound)

	run, err := c.engine.Store(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.Clusters)
	assert.Equal(t, 5, run.Chunks)

	callScope := models.Scope{CallID: c.callA}
	callRun, err := c.engine.Store(ctx, callScope, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, callRun.Chunks)
	assert.NotEqual(t, run.ID, callRun.ID)

	latest, err := c.engine.LatestRun(ctx, models.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)

	global, err := c.engine.Details(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	require.Len(t, global, 2)

	perCall, err := c.engine.Details(ctx, callScope, 1)
	require.NoError(t, err)
	require.Len(t, perCall, 2)
	assert.Equal(t, 2, perCall[0].Size)
	assert.Equal(t, 1, perCall[1].Size)
}

func TestDetails(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	_, err := c.engine.Store(ctx, models.GlobalScope, 0)
	require.NoError(t, err)

	details, err := c.engine.Details(ctx, models.GlobalScope, 0)
	require.NoError(t, err)
	require.Len(t, details, 2)

	billing := details[0]
	assert.Equal(t, 3, billing.Size)
	assert.Equal(t, "billing / invoices / late", billing.Label)
	require.Len(t, billing.Members, 3)
	// chronological, then by index
	assert.Equal(t, c.billing, []int64{billing.Members[0].ChunkID, billing.Members[1].ChunkID, billing.Members[2].ChunkID})
	assert.Equal(t, "Acme", billing.Members[0].Org)

	assert.Equal(t, 2, details[1].Size)
	assert.Equal(t, "hiring", details[1].Label[:len("hiring")])

	big, err := c.engine.Details(ctx, models.GlobalScope, 3)
	require.NoError(t, err)
	assert.Len(t, big, 1)

	_, err = c.engine.Details(ctx, models.GlobalScope, -1)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestExpand(t *testing.T) {
	c := newCorpus(t)
	ctx := context.Background()

	// Nothing stored yet.
	members, err := c.engine.Expand(ctx, []int64{c.billing[0]}, cluster.ExpandOptions{})
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = c.engine.Store(ctx, models.GlobalScope, 0)
	require.NoError(t, err)

	members, err = c.engine.Expand(ctx, []int64{c.billing[0]}, cluster.ExpandOptions{})
	require.NoError(t, err)
	require.Len(t, members, 2)
	// newest call first
	assert.Equal(t, c.billing[2], members[0].ChunkID)
	assert.Equal(t, c.billing[1], members[1].ChunkID)
	for _, m := range members {
		assert.NotEqual(t, c.billing[0], m.ChunkID)
	}

	members, err = c.engine.Expand(ctx, []int64{c.billing[0], c.hiring[0]}, cluster.ExpandOptions{Exclude: []int64{c.billing[2]}})
	require.NoError(t, err)
	got := []int64{}
	for _, m := range members {
		got = append(got, m.ChunkID)
	}
	assert.ElementsMatch(t, []int64{c.billing[1], c.hiring[1]}, got)

	members, err = c.engine.Expand(ctx, []int64{9999}, cluster.ExpandOptions{})
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)

	members, err = c.engine.Expand(ctx, nil, cluster.ExpandOptions{})
	require.NoError(t, err)
	assert.Empty(t, members)
}

type fakeSummarizer struct {
	reply string
	err   error
	texts []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, texts []string) (string, error) {
	f.texts = texts
	return f.reply, f.err
}

func TestSummarize(t *testing.T) {
	detail := models.ClusterDetail{
		ClusterID: 4,
		Members: []models.ClusterMember{
			{Text: "one"}, {Text: "two"},
		},
	}
	ctx := context.Background()

	summarizer := &fakeSummarizer{reply: "Two things were discussed."}
	c := newCorpus(t, cluster.WithSummarizer(summarizer))
	summary, err := c.engine.Summarize(ctx, detail)
	require.NoError(t, err)
	assert.Equal(t, "Two things were discussed.", summary)
	assert.Equal(t, []string{"one", "two"}, summarizer.texts)

	c = newCorpus(t, cluster.WithSummarizer(&fakeSummarizer{}))
	_, err = c.engine.Summarize(ctx, detail)
	assert.ErrorIs(t, err, types.ErrUnparseableOutput)

	c = newCorpus(t, cluster.WithSummarizer(&fakeSummarizer{err: types.ErrDependencyUnavailable}))
	_, err = c.engine.Summarize(ctx, detail)
	assert.True(t, errors.Is(err, types.ErrDependencyUnavailable))

	c = newCorpus(t)
	_, err = c.engine.Summarize(ctx, detail)
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := cluster.NewEngine(nil, cluster.Config{})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = cluster.NewEngine(testutil.NewMemoryStore(), cluster.Config{DistanceThreshold: 2})
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	engine, err := cluster.NewEngine(testutil.NewMemoryStore(), cluster.Config{ExcludeNames: []string{"Priya"}})
	require.NoError(t, err)
	assert.Equal(t, "migration", engine.Label([]string{"Priya migration"}))
}
