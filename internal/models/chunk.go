package models

import "time"

// TextChunk is chunker output: a bounded span of text with optional speaker
// attribution, not yet embedded.
type TextChunk struct {
	Index   int
	Speaker string
	Text    string
}

// Chunk is the atomic unit of retrieval.
type Chunk struct {
	ID        int64
	ParentID  int64
	Index     int
	Text      string
	Speaker   string
	Embedding []float32
}

// ChunkEmbedding is the minimal view of a chunk needed for clustering.
type ChunkEmbedding struct {
	ID        int64
	ParentID  int64
	Index     int
	Embedding []float32
}

// Filter narrows candidate retrieval by parent attributes. Zero values mean
// "no restriction".
type Filter struct {
	Org     string
	Project string
	Since   *time.Time
}

// Candidate is a chunk returned by a store retrieval primitive together with
// its parent context and the raw score the primitive computed.
type Candidate struct {
	ChunkID     int64
	ParentID    int64
	Index       int
	Text        string
	Speaker     string
	Org         string
	Project     string
	Title       string
	Summary     string
	CallDate    time.Time
	Distance    float64
	LexicalRank float64
}
