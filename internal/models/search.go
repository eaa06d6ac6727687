package models

import "time"

// SearchHit is a chunk with the scores computed for one query. It is never
// persisted.
type SearchHit struct {
	ChunkID  int64     `json:"id"`
	ParentID int64     `json:"call_id"`
	Index    int       `json:"chunk_idx"`
	Text     string    `json:"text"`
	Speaker  string    `json:"speaker,omitempty"`
	Org      string    `json:"org_name"`
	Project  string    `json:"project_name,omitempty"`
	Title    string    `json:"title,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	CallDate time.Time `json:"call_date"`
	DaysOld  int       `json:"days_old"`

	Distance     float64 `json:"distance"`
	RecencyScore float64 `json:"recency_score,omitempty"`

	SemanticScore float64 `json:"semantic_score,omitempty"`
	LexicalScore  float64 `json:"fts_score,omitempty"`
	CombinedScore float64 `json:"combined_score,omitempty"`
}

// RecentResult is the outcome of a bounded recent-only search.
type RecentResult struct {
	Hits           []SearchHit `json:"results"`
	DaysBack       int         `json:"days_back"`
	NeedsExpansion bool        `json:"needs_expansion"`
}
