package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xhad/recall/internal/models"
)

var (
	bracketTag = regexp.MustCompile(`(?s)^\[([^\]]+)\]\s*(.*)$`)
	colonTag   = regexp.MustCompile(`(?s)^([A-Z][\w.'-]*(?: [A-Z0-9][\w.'-]*){0,3}):\s+(.*)$`)
)

type segment struct {
	speaker  string
	sentence string
}

// Transcript chunks a preprocessed transcript on sentence boundaries within
// speaker turns. Every chunk except the last is within
// [MinChunkSize, MaxChunkSize] characters unless a single sentence is longer
// than MaxChunkSize, in which case it is kept whole.
func (c *Chunker) Transcript(text string) []models.TextChunk {
	var segments []segment
	for _, turn := range c.splitTurns(text) {
		speaker, body := c.parseTurn(turn)
		for _, sentence := range splitSentences(body) {
			segments = append(segments, segment{speaker: speaker, sentence: sentence})
		}
	}
	if len(segments) == 0 {
		return nil
	}

	var (
		chunks    []models.TextChunk
		sentences []string
		speakers  []string
		size      int
	)

	flush := func() {
		chunks = append(chunks, models.TextChunk{
			Speaker: primarySpeaker(speakers),
			Text:    strings.Join(sentences, " "),
		})
		sentences = nil
		speakers = nil
		size = 0
	}

	for _, seg := range segments {
		n := charLen(seg.sentence)
		if size > 0 && size+1+n > c.config.MaxChunkSize && size >= c.config.MinChunkSize {
			flush()
		}
		if size > 0 {
			size++
		}
		size += n
		sentences = append(sentences, seg.sentence)
		if seg.speaker != "" {
			speakers = append(speakers, seg.speaker)
		}
	}
	if len(sentences) > 0 {
		flush()
	}

	return indexed(chunks)
}

func (c *Chunker) splitTurns(text string) []string {
	var turns []string
	for _, t := range blankLine.Split(normalizeNewlines(text), -1) {
		if t = strings.TrimSpace(t); t != "" {
			turns = append(turns, t)
		}
	}
	return turns
}

func (c *Chunker) parseTurn(turn string) (speaker, body string) {
	if m := bracketTag.FindStringSubmatch(turn); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	if c.config.ColonSpeakerTags {
		if m := colonTag.FindStringSubmatch(turn); m != nil {
			return m[1], strings.TrimSpace(m[2])
		}
	}
	return "", turn
}

// splitSentences breaks text on newlines and on terminal punctuation followed
// by whitespace and an uppercase letter.
func splitSentences(text string) []string {
	var sentences []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sentences = append(sentences, splitLine(line)...)
	}
	return sentences
}

func splitLine(line string) []string {
	runes := []rune(line)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// primarySpeaker returns the most frequent speaker, ties going to the one seen
// first.
func primarySpeaker(speakers []string) string {
	counts := make(map[string]int, len(speakers))
	var order []string
	for _, s := range speakers {
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
	}

	best, bestCount := "", 0
	for _, s := range order {
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best
}
