package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/testutil"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/chunker"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *testutil.MemoryStore
	search   *search.Engine
	clusters *cluster.Engine
	server   *Server
	billing  []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemoryStore()
	embedder := testutil.NewHashEmbedder(4)
	embedder.Vectors["billing"] = []float32{1, 0, 0, 0}

	_, a := store.AddParent(
		models.Parent{Org: "Acme", Title: "Planning", CallDate: now.AddDate(0, 0, -2)},
		models.Chunk{Index: 0, Text: "Billing invoices are late", Embedding: []float32{1, 0, 0, 0}},
		models.Chunk{Index: 1, Text: "Hiring plan for engineers", Embedding: []float32{0, 0, 1, 0}},
	)
	_, b := store.AddParent(
		models.Parent{Org: "Globex", Title: "Kickoff", CallDate: now.AddDate(0, 0, -40)},
		models.Chunk{Index: 0, Text: "Billing retry logic", Embedding: []float32{0.98, 0.05, 0.1, 0}},
	)

	searcher, err := search.NewEngine(store, embedder, search.Config{}, search.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	clusters, err := cluster.NewEngine(store, cluster.Config{})
	require.NoError(t, err)
	ch, err := chunker.NewWithConfig(chunker.ChunkerConfig{})
	require.NoError(t, err)

	server, err := NewServer(&Ports{Search: searcher, Clusters: clusters, Chunker: ch}, nil)
	require.NoError(t, err)

	return &fixture{
		store:    store,
		search:   searcher,
		clusters: clusters,
		server:   server,
		billing:  []int64{a[0], b[0]},
	}
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ranked results", func(t *testing.T) {
		f := newFixture(t)
		_, output, err := f.server.handleSearch(ctx, nil, SearchInput{Query: "billing"})
		require.NoError(t, err)
		assert.Equal(t, 3, output.Count)
		require.Len(t, output.Results, 3)
		assert.Equal(t, f.billing[0], output.Results[0].ChunkID)
		assert.Equal(t, "Acme", output.Results[0].Org)
		assert.Equal(t, "2025-06-13", output.Results[0].CallDate)
		assert.Equal(t, 2, output.Results[0].DaysOld)
	})

	t.Run("recent window reports expansion", func(t *testing.T) {
		f := newFixture(t)
		_, output, err := f.server.handleSearch(ctx, nil, SearchInput{
			Query:    "billing",
			Org:      "Globex",
			DaysBack: search.Days(7),
			Recent:   true,
		})
		require.NoError(t, err)
		assert.Zero(t, output.Count)
		assert.Equal(t, 7, output.DaysBack)
		assert.True(t, output.NeedsExpansion)
	})

	t.Run("limit above maximum is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.server.handleSearch(ctx, nil, SearchInput{Query: "billing", Limit: 51})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		f := newFixture(t)
		f.store.Err = types.ErrDependencyUnavailable
		_, _, err := f.server.handleSearch(ctx, nil, SearchInput{Query: "billing"})
		assert.ErrorIs(t, err, types.ErrDependencyUnavailable)
	})
}

func TestServer_handleHybridSearch(t *testing.T) {
	f := newFixture(t)

	_, output, err := f.server.handleHybridSearch(context.Background(), nil, HybridSearchInput{
		Query: "billing",
		Limit: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, output.Count)
	assert.Equal(t, f.billing[0], output.Results[0].ChunkID)
	assert.Greater(t, output.Results[0].CombinedScore, 0.0)
}

func TestServer_handleExpand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, output, err := f.server.handleExpand(ctx, nil, ExpandInput{ChunkIDs: []int64{f.billing[0]}})
	require.NoError(t, err)
	assert.Zero(t, output.Count, "nothing is stored before clustering")
	assert.NotNil(t, output.Chunks)

	_, err = f.clusters.Store(ctx, models.GlobalScope, 0.3)
	require.NoError(t, err)

	_, output, err = f.server.handleExpand(ctx, nil, ExpandInput{ChunkIDs: []int64{f.billing[0]}})
	require.NoError(t, err)
	require.Equal(t, 1, output.Count)
	assert.Equal(t, f.billing[1], output.Chunks[0].ChunkID)
	assert.Equal(t, "Globex", output.Chunks[0].Org)

	_, output, err = f.server.handleExpand(ctx, nil, ExpandInput{
		ChunkIDs: []int64{f.billing[0]},
		Exclude:  []int64{f.billing[1]},
	})
	require.NoError(t, err)
	assert.Zero(t, output.Count)
}

func TestServer_handleListClusters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.clusters.Store(ctx, models.GlobalScope, 0.3)
	require.NoError(t, err)

	_, output, err := f.server.handleListClusters(ctx, nil, ListClustersInput{})
	require.NoError(t, err)
	require.Equal(t, 1, output.Count)
	assert.Equal(t, 2, output.Clusters[0].Size)
	assert.Len(t, output.Clusters[0].Chunks, 2)
	assert.Contains(t, output.Clusters[0].Label, "billing")

	_, _, err = f.server.handleListClusters(ctx, nil, ListClustersInput{MinSize: -1})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestServer_handleChunkText(t *testing.T) {
	f := newFixture(t)

	_, output, err := f.server.handleChunkText(context.Background(), nil, ChunkTextInput{
		Text:       "# Goals\nShip the billing export before the end of the quarter.\n\n# Risks\nThe invoice backlog keeps growing every single week.",
		SourceType: models.SourceNotes,
	})
	require.NoError(t, err)
	require.Equal(t, 2, output.Count)
	assert.Equal(t, 0, output.Chunks[0].Index)
	assert.Contains(t, output.Chunks[0].Text, "# Goals")
	assert.Contains(t, output.Chunks[1].Text, "# Risks")

	_, _, err = f.server.handleChunkText(context.Background(), nil, ChunkTextInput{Text: "x", SourceType: "video"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}
