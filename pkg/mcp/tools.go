package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

const (
	defaultLimit = 10
	maxLimit     = 50
	dateLayout   = "2006-01-02"
)

type SearchInput struct {
	Query    string `json:"query" jsonschema:"natural language query"`
	Org      string `json:"org,omitempty" jsonschema:"restrict to one organization"`
	Project  string `json:"project,omitempty" jsonschema:"restrict to one project"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 10, at most 50)"`
	DaysBack *int   `json:"days_back,omitempty" jsonschema:"only calls from the last N days"`
	Recent   bool   `json:"recent,omitempty" jsonschema:"search the recent window first and report when it is empty"`
}

type HybridSearchInput struct {
	Query          string   `json:"query" jsonschema:"query matched by meaning and by keywords"`
	Org            string   `json:"org,omitempty" jsonschema:"restrict to one organization"`
	Project        string   `json:"project,omitempty" jsonschema:"restrict to one project"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of results (default 10, at most 50)"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty" jsonschema:"weight of the semantic score (default 0.7)"`
	LexicalWeight  *float64 `json:"lexical_weight,omitempty" jsonschema:"weight of the keyword score (default 0.3)"`
}

type SearchOutput struct {
	Results        []ChunkOutput `json:"results"`
	Count          int           `json:"count"`
	DaysBack       int           `json:"days_back,omitempty"`
	NeedsExpansion bool          `json:"needs_expansion,omitempty"`
}

// ChunkOutput is a retrieved chunk with its call context. Scores are zero
// when they do not apply.
type ChunkOutput struct {
	ChunkID       int64   `json:"chunk_id"`
	CallID        int64   `json:"call_id"`
	Index         int     `json:"chunk_idx"`
	Org           string  `json:"org"`
	Project       string  `json:"project,omitempty"`
	Title         string  `json:"title,omitempty"`
	CallDate      string  `json:"call_date"`
	Speaker       string  `json:"speaker,omitempty"`
	Text          string  `json:"text"`
	DaysOld       int     `json:"days_old,omitempty"`
	Distance      float64 `json:"distance,omitempty"`
	RecencyScore  float64 `json:"recency_score,omitempty"`
	CombinedScore float64 `json:"combined_score,omitempty"`
}

type ExpandInput struct {
	ChunkIDs []int64 `json:"chunk_ids" jsonschema:"chunk IDs from a previous search"`
	Exclude  []int64 `json:"exclude,omitempty" jsonschema:"chunk IDs to leave out, typically the rest of the search results"`
	CallID   int64   `json:"call_id,omitempty" jsonschema:"use the clusters computed for this call instead of the whole corpus"`
}

type ExpandOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

type ListClustersInput struct {
	CallID  int64 `json:"call_id,omitempty" jsonschema:"list the clusters computed for this call instead of the whole corpus"`
	MinSize int   `json:"min_size,omitempty" jsonschema:"smallest cluster to list (default 2)"`
}

type ClusterOutput struct {
	ClusterID int           `json:"cluster_id"`
	Size      int           `json:"size"`
	Label     string        `json:"label"`
	Chunks    []ChunkOutput `json:"chunks"`
}

type ListClustersOutput struct {
	Clusters []ClusterOutput `json:"clusters"`
	Count    int             `json:"count"`
}

type ChunkTextInput struct {
	Text       string `json:"text" jsonschema:"transcript or notes to split"`
	SourceType string `json:"source_type,omitempty" jsonschema:"transcript (default), notes or reference"`
}

type TextChunkOutput struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

type ChunkTextOutput struct {
	Chunks []TextChunkOutput `json:"chunks"`
	Count  int               `json:"count"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search call transcripts and notes by meaning, favoring recent calls",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Search by meaning and exact keywords together, for names, acronyms and product terms",
	}, s.handleHybridSearch)

	if s.ports.Clusters != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "expand_by_cluster",
			Description: "Find chunks on the same topic as the given search results, across other calls",
		}, s.handleExpand)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_clusters",
			Description: "List recurring topics with a short label and their chunks",
		}, s.handleListClusters)
	}

	if s.ports.Chunker != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "chunk_text",
			Description: "Split a transcript or notes into the chunks that would be indexed",
		}, s.handleChunkText)
	}
}

func resolveLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return defaultLimit, nil
	case limit < 0 || limit > maxLimit:
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrInvalidInput, maxLimit)
	}
	return limit, nil
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit, err := resolveLimit(input.Limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	opts := search.Options{
		Org:      input.Org,
		Project:  input.Project,
		Limit:    limit,
		DaysBack: input.DaysBack,
	}

	if input.Recent {
		result, err := s.ports.Search.Recent(ctx, input.Query, opts)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		output := searchOutput(result.Hits)
		output.DaysBack = result.DaysBack
		output.NeedsExpansion = result.NeedsExpansion
		return nil, output, nil
	}

	hits, err := s.ports.Search.Semantic(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, searchOutput(hits), nil
}

func (s *Server) handleHybridSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HybridSearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit, err := resolveLimit(input.Limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	hits, err := s.ports.Search.Hybrid(ctx, input.Query, search.Options{
		Org:            input.Org,
		Project:        input.Project,
		Limit:          limit,
		SemanticWeight: input.SemanticWeight,
		LexicalWeight:  input.LexicalWeight,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, searchOutput(hits), nil
}

func (s *Server) handleExpand(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExpandInput,
) (*mcp.CallToolResult, ExpandOutput, error) {
	members, err := s.ports.Clusters.Expand(ctx, input.ChunkIDs, cluster.ExpandOptions{
		Scope:   models.Scope{CallID: input.CallID},
		Exclude: input.Exclude,
	})
	if err != nil {
		return nil, ExpandOutput{}, err
	}

	output := ExpandOutput{Chunks: make([]ChunkOutput, len(members)), Count: len(members)}
	for i, m := range members {
		output.Chunks[i] = memberOutput(m)
	}
	return nil, output, nil
}

func (s *Server) handleListClusters(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListClustersInput,
) (*mcp.CallToolResult, ListClustersOutput, error) {
	details, err := s.ports.Clusters.Details(ctx, models.Scope{CallID: input.CallID}, input.MinSize)
	if err != nil {
		return nil, ListClustersOutput{}, err
	}

	output := ListClustersOutput{Clusters: make([]ClusterOutput, len(details)), Count: len(details)}
	for i, d := range details {
		c := ClusterOutput{
			ClusterID: d.ClusterID,
			Size:      d.Size,
			Label:     d.Label,
			Chunks:    make([]ChunkOutput, len(d.Members)),
		}
		for j, m := range d.Members {
			c.Chunks[j] = memberOutput(m)
		}
		output.Clusters[i] = c
	}
	return nil, output, nil
}

func (s *Server) handleChunkText(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ChunkTextInput,
) (*mcp.CallToolResult, ChunkTextOutput, error) {
	chunks, err := s.ports.Chunker.Chunk(models.Document{
		Parent:  models.Parent{SourceType: input.SourceType},
		Content: input.Text,
	})
	if err != nil {
		return nil, ChunkTextOutput{}, err
	}

	output := ChunkTextOutput{Chunks: make([]TextChunkOutput, len(chunks)), Count: len(chunks)}
	for i, c := range chunks {
		output.Chunks[i] = TextChunkOutput{Index: c.Index, Speaker: c.Speaker, Text: c.Text}
	}
	return nil, output, nil
}

func searchOutput(hits []models.SearchHit) SearchOutput {
	output := SearchOutput{Results: make([]ChunkOutput, len(hits)), Count: len(hits)}
	for i, h := range hits {
		output.Results[i] = ChunkOutput{
			ChunkID:       h.ChunkID,
			CallID:        h.ParentID,
			Index:         h.Index,
			Org:           h.Org,
			Project:       h.Project,
			Title:         h.Title,
			CallDate:      h.CallDate.Format(dateLayout),
			Speaker:       h.Speaker,
			Text:          h.Text,
			DaysOld:       h.DaysOld,
			Distance:      h.Distance,
			RecencyScore:  h.RecencyScore,
			CombinedScore: h.CombinedScore,
		}
	}
	return output
}

func memberOutput(m models.ClusterMember) ChunkOutput {
	return ChunkOutput{
		ChunkID:  m.ChunkID,
		CallID:   m.ParentID,
		Index:    m.Index,
		Org:      m.Org,
		Project:  m.Project,
		Title:    m.Title,
		CallDate: m.CallDate.Format(dateLayout),
		Speaker:  m.Speaker,
		Text:     m.Text,
	}
}
