package types

import (
	"context"

	"github.com/xhad/recall/internal/models"
)

// Embedder converts text into fixed-dimension, L2-normalized vectors. It
// blocks until the vectors are ready and fails with ErrDependencyUnavailable
// when the backend cannot be reached.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchStore exposes the retrieval primitives the search engine needs.
type SearchStore interface {
	// SemanticCandidates returns embedded chunks matching filter ordered by
	// cosine distance to embedding. maxDistance <= 0 disables the distance
	// ceiling and limit <= 0 returns every match.
	SemanticCandidates(ctx context.Context, embedding []float32, filter models.Filter, maxDistance float64, limit int) ([]models.Candidate, error)

	// LexicalCandidates returns chunks matching the full-text query ordered
	// by text relevance rank.
	LexicalCandidates(ctx context.Context, query string, filter models.Filter, limit int) ([]models.Candidate, error)
}

// ClusterStore persists and reads cluster assignments.
type ClusterStore interface {
	ChunkEmbeddings(ctx context.Context, scope models.Scope) ([]models.ChunkEmbedding, error)

	// ReplaceAssignments atomically deletes every assignment of run.Scope and
	// inserts the given ones.
	ReplaceAssignments(ctx context.Context, run models.ClusterRun, assignments []models.Assignment) error

	LatestRun(ctx context.Context, scope models.Scope) (*models.ClusterRun, error)
	ClusterSizes(ctx context.Context, scope models.Scope, minSize int) ([]models.ClusterSize, error)
	ClusterMembers(ctx context.Context, scope models.Scope, clusterID int) ([]models.ClusterMember, error)
	ClusterIDsFor(ctx context.Context, scope models.Scope, chunkIDs []int64) ([]int, error)
	ChunksInClusters(ctx context.Context, scope models.Scope, clusterIDs []int, exclude []int64) ([]models.ClusterMember, error)
}

// DocumentStore writes chunked, embedded documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc models.ProcessedDocument) (int64, error)
	FindBySourceFile(ctx context.Context, sourceFile string) (*models.Parent, error)
	DeleteParent(ctx context.Context, parentID int64) (int, error)

	// ReplaceDocument atomically deletes parent previousID and stores doc. It
	// returns the new parent ID and the number of chunks deleted.
	ReplaceDocument(ctx context.Context, previousID int64, doc models.ProcessedDocument) (int64, int, error)
}
