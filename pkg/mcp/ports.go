package mcp

import (
	"context"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

// SearchService is implemented by *search.Engine.
type SearchService interface {
	Semantic(ctx context.Context, query string, opts search.Options) ([]models.SearchHit, error)
	Recent(ctx context.Context, query string, opts search.Options) (models.RecentResult, error)
	Hybrid(ctx context.Context, query string, opts search.Options) ([]models.SearchHit, error)
}

// ClusterService is implemented by *cluster.Engine.
type ClusterService interface {
	Details(ctx context.Context, scope models.Scope, minSize int) ([]models.ClusterDetail, error)
	Expand(ctx context.Context, seeds []int64, opts cluster.ExpandOptions) ([]models.ClusterMember, error)
}

// Chunker is implemented by *chunker.Chunker.
type Chunker interface {
	Chunk(doc models.Document) ([]models.TextChunk, error)
}

// Ports aggregates the services the MCP server calls into.
type Ports struct {
	Search SearchService

	// Clusters enables expand_by_cluster and list_clusters.
	Clusters ClusterService

	// Chunker enables chunk_text.
	Chunker Chunker
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
