package models

import "time"

// Source types a parent can be ingested as.
const (
	SourceTranscript = "transcript"
	SourceNotes      = "notes"
	SourceReference  = "reference"
)

// Parent is the read-only projection of the call or document a chunk was
// derived from.
type Parent struct {
	ID         int64
	Org        string
	Project    string
	Title      string
	CallDate   time.Time
	SourceType string
	SourceFile string
	Summary    string
}

// Document is a prepared text waiting to be chunked and embedded.
type Document struct {
	Parent
	Content string
}

// ProcessedDocument is a document after chunking and embedding, ready to be
// written in one transaction.
type ProcessedDocument struct {
	Parent
	Chunks []Chunk
}
