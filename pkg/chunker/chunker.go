// Package chunker splits prepared transcripts and notes into bounded units
// ready for embedding. It performs no I/O and no embedding.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
)

const (
	DefaultMinChunkSize     = 500
	DefaultMaxChunkSize     = 700
	DefaultSectionMinSize   = 50
	DefaultReferenceMinSize = 100
)

type ChunkerConfig struct {
	// MinChunkSize and MaxChunkSize bound transcript chunks, in characters.
	MinChunkSize int
	MaxChunkSize int

	// SectionMinSize drops note sections shorter than this.
	SectionMinSize int

	// ReferenceMinSize is SectionMinSize for reference documents.
	ReferenceMinSize int

	// ColonSpeakerTags also recognises "Name: text" turn prefixes in
	// addition to "[Name] text".
	ColonSpeakerTags bool
}

type Chunker struct {
	config ChunkerConfig
}

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

func NewWithConfig(config ChunkerConfig) (*Chunker, error) {
	if config.MinChunkSize == 0 {
		config.MinChunkSize = DefaultMinChunkSize
	}
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = DefaultMaxChunkSize
	}
	if config.SectionMinSize == 0 {
		config.SectionMinSize = DefaultSectionMinSize
	}
	if config.ReferenceMinSize == 0 {
		config.ReferenceMinSize = DefaultReferenceMinSize
	}

	if config.MinChunkSize < 0 || config.MaxChunkSize < 0 {
		return nil, fmt.Errorf("%w: chunk sizes must be positive", types.ErrInvalidInput)
	}
	if config.MinChunkSize >= config.MaxChunkSize {
		return nil, fmt.Errorf("%w: min chunk size %d must be less than max chunk size %d",
			types.ErrInvalidInput, config.MinChunkSize, config.MaxChunkSize)
	}
	if config.SectionMinSize < 0 || config.ReferenceMinSize < 0 {
		return nil, fmt.Errorf("%w: section minimum must not be negative", types.ErrInvalidInput)
	}

	return &Chunker{config: config}, nil
}

// Config returns the effective configuration, defaults applied.
func (c *Chunker) Config() ChunkerConfig {
	return c.config
}

// Chunk picks the strategy matching the document's source type.
func (c *Chunker) Chunk(doc models.Document) ([]models.TextChunk, error) {
	switch doc.SourceType {
	case models.SourceTranscript, "":
		return c.Transcript(doc.Content), nil
	case models.SourceNotes:
		return c.Sections(doc.Content, c.config.SectionMinSize), nil
	case models.SourceReference:
		return c.Sections(doc.Content, c.config.ReferenceMinSize), nil
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", types.ErrInvalidInput, doc.SourceType)
	}
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}

func indexed(chunks []models.TextChunk) []models.TextChunk {
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}
