package chunker

import (
	"regexp"
	"strings"

	"github.com/xhad/recall/internal/models"
)

var sectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#{1,4}\s+`),       // markdown headers
	regexp.MustCompile(`^\d+\.\s+[A-Z]`),   // 1. Title
	regexp.MustCompile(`^[a-z]\)\s+[A-Z]`), // a) Title
	regexp.MustCompile(`^[A-Z][A-Z\s]+:$`), // ALL CAPS HEADER:
	regexp.MustCompile(`^[A-Z][A-Z\s]+$`),  // ALL CAPS LINE
}

func isSectionStart(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	for _, p := range sectionPatterns {
		if p.MatchString(stripped) {
			return true
		}
	}
	return false
}

// Sections chunks structured notes on section headers. Sections shorter than
// minSize are dropped. Text without any header is split into paragraphs
// instead. If nothing qualifies the whole text becomes one chunk, so
// non-empty input always yields at least one chunk.
func (c *Chunker) Sections(text string, minSize int) []models.TextChunk {
	text = normalizeNewlines(text)

	var (
		chunks    []models.TextChunk
		lines     []string
		header    string
		sawHeader bool
	)

	flush := func() {
		if len(lines) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if charLen(body) >= minSize {
			if header != "" && !strings.HasPrefix(body, header) {
				body = header + "\n" + body
			}
			chunks = append(chunks, models.TextChunk{Text: body})
		}
		lines = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if isSectionStart(line) {
			flush()
			header = strings.TrimSpace(line)
			sawHeader = true
		}
		lines = append(lines, line)
	}
	flush()

	if !sawHeader {
		chunks = nil
		for _, p := range blankLine.Split(text, -1) {
			p = strings.TrimSpace(p)
			if p != "" && charLen(p) >= minSize {
				chunks = append(chunks, models.TextChunk{Text: p})
			}
		}
	}

	if len(chunks) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			chunks = append(chunks, models.TextChunk{Text: trimmed})
		}
	}

	return indexed(chunks)
}
