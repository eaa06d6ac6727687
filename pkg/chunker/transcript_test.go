package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/chunker"
)

func newChunker(t *testing.T, config chunker.ChunkerConfig) *chunker.Chunker {
	t.Helper()
	c, err := chunker.NewWithConfig(config)
	require.NoError(t, err)
	return c
}

// sentence builds a sentence of exactly n characters starting with an
// uppercase letter and ending with a period.
func sentence(n int) string {
	return "S" + strings.Repeat("a", n-2) + "."
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinTexts(c *chunker.Chunker, text string) string {
	var parts []string
	for _, ch := range c.Transcript(text) {
		parts = append(parts, ch.Text)
	}
	return strings.Join(parts, " ")
}

func TestNewWithConfig_Defaults(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{})
	cfg := c.Config()
	assert.Equal(t, 500, cfg.MinChunkSize)
	assert.Equal(t, 700, cfg.MaxChunkSize)
	assert.Equal(t, 50, cfg.SectionMinSize)
	assert.Equal(t, 100, cfg.ReferenceMinSize)
}

func TestNewWithConfig_InvalidBounds(t *testing.T) {
	tests := []struct {
		name   string
		config chunker.ChunkerConfig
	}{
		{"min equals max", chunker.ChunkerConfig{MinChunkSize: 600, MaxChunkSize: 600}},
		{"min above max", chunker.ChunkerConfig{MinChunkSize: 800, MaxChunkSize: 700}},
		{"negative min", chunker.ChunkerConfig{MinChunkSize: -1, MaxChunkSize: 700}},
		{"negative section min", chunker.ChunkerConfig{SectionMinSize: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := chunker.NewWithConfig(tt.config)
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestTranscript_SingleSpeakerTurnSplitsInTwo(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{MinChunkSize: 500, MaxChunkSize: 700})

	var sentences []string
	for i := 0; i < 12; i++ {
		sentences = append(sentences, sentence(99))
	}
	sentences = append(sentences, sentence(100))
	body := strings.Join(sentences, " ")
	require.Equal(t, 1300, utf8.RuneCountInString(body))

	chunks := c.Transcript("[Alice] " + body)

	require.Len(t, chunks, 2)
	for i, ch := range chunks {
		n := utf8.RuneCountInString(ch.Text)
		assert.GreaterOrEqual(t, n, 500, "chunk %d", i)
		assert.LessOrEqual(t, n, 700, "chunk %d", i)
		assert.Equal(t, "Alice", ch.Speaker)
		assert.Equal(t, i, ch.Index)
	}
	assert.Equal(t, body, chunks[0].Text+" "+chunks[1].Text)
}

func TestTranscript_LosslessAndBounded(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{MinChunkSize: 200, MaxChunkSize: 300})

	words := []string{"Pricing", "Renewal", "Migration", "Security", "Onboarding", "Budget"}
	var turns, bodies []string
	for i := 0; i < 24; i++ {
		speaker := []string{"Dana", "Lee", "Sam"}[i%3]
		var body []string
		for j := 0; j < 1+i%4; j++ {
			body = append(body, words[(i+j)%len(words)]+" came up again in turn "+
				strings.Repeat("and again ", 1+(i*j)%5)+"today.")
		}
		bodies = append(bodies, strings.Join(body, " "))
		turns = append(turns, "["+speaker+"] "+strings.Join(body, " "))
	}
	input := strings.Join(turns, "\n\n")

	chunks := c.Transcript(input)
	require.NotEmpty(t, chunks)

	assert.Equal(t, normalize(strings.Join(bodies, " ")), normalize(joinTexts(c, input)))

	for i, ch := range chunks[:len(chunks)-1] {
		n := utf8.RuneCountInString(ch.Text)
		assert.GreaterOrEqual(t, n, 200, "chunk %d", i)
		assert.LessOrEqual(t, n, 300, "chunk %d", i)
	}
}

func TestTranscript_OversizedSentenceKeptWhole(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{MinChunkSize: 50, MaxChunkSize: 100})

	long := sentence(250)
	input := "[Ana] " + sentence(60) + " " + long + " " + sentence(40)

	chunks := c.Transcript(input)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Text, long) {
			found = true
		}
	}
	assert.True(t, found, "long sentence must not be split")
	assert.Equal(t, normalize(input[len("[Ana] "):]), normalize(joinTexts(c, input)))
}

func TestTranscript_PrimarySpeaker(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{MinChunkSize: 500, MaxChunkSize: 700})

	t.Run("most frequent wins", func(t *testing.T) {
		input := "[Bo] One thing.\n\n[Cy] Second. Third. Fourth.\n\n[Bo] Fifth."
		chunks := c.Transcript(input)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Cy", chunks[0].Speaker)
	})

	t.Run("tie goes to first seen", func(t *testing.T) {
		input := "[Bo] One. Two.\n\n[Cy] Three. Four."
		chunks := c.Transcript(input)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Bo", chunks[0].Speaker)
	})

	t.Run("no speaker tags", func(t *testing.T) {
		chunks := c.Transcript("Nobody is tagged here. Still nobody.")
		require.Len(t, chunks, 1)
		assert.Empty(t, chunks[0].Speaker)
	})
}

func TestTranscript_SentenceBoundaries(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{MinChunkSize: 1, MaxChunkSize: 2})

	chunks := c.Transcript("Hello there. how are you? Fine!\nNew line here")

	var texts []string
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	assert.Equal(t, []string{"Hello there. how are you?", "Fine!", "New line here"}, texts)
}

func TestTranscript_ColonSpeakerTags(t *testing.T) {
	input := "Jane Doe: We should ship it.\n\nMark: Agreed."

	plain := newChunker(t, chunker.ChunkerConfig{})
	chunks := plain.Transcript(input)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Speaker)
	assert.Contains(t, chunks[0].Text, "Jane Doe:")

	tagged := newChunker(t, chunker.ChunkerConfig{ColonSpeakerTags: true})
	chunks = tagged.Transcript(input)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Jane Doe", chunks[0].Speaker)
	assert.Equal(t, "We should ship it. Agreed.", chunks[0].Text)
}

func TestTranscript_EmptyInput(t *testing.T) {
	c := newChunker(t, chunker.ChunkerConfig{})
	assert.Empty(t, c.Transcript(""))
	assert.Empty(t, c.Transcript(" \n\n \r\n "))
}
