package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/llm"
)

type fakeModel struct {
	reply  string
	err    error
	prompt string
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompt += text.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestSummarizer_Summarize(t *testing.T) {
	model := &fakeModel{reply: "  The team agreed to ship the billing fix on Friday.\n"}
	s, err := llm.NewSummarizer(model, llm.SummarizerConfig{})
	require.NoError(t, err)

	summary, err := s.Summarize(context.Background(), []string{"We ship Friday.", "Billing fix is ready."})
	require.NoError(t, err)
	assert.Equal(t, "The team agreed to ship the billing fix on Friday.", summary)
	assert.True(t, strings.Contains(model.prompt, "We ship Friday.\n\nBilling fix is ready."))
}

func TestSummarizer_EmptyResponse(t *testing.T) {
	s, err := llm.NewSummarizer(&fakeModel{reply: "   "}, llm.SummarizerConfig{})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, types.ErrUnparseableOutput)
}

func TestSummarizer_ModelFailure(t *testing.T) {
	s, err := llm.NewSummarizer(&fakeModel{err: errors.New("model not loaded")}, llm.SummarizerConfig{})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, types.ErrDependencyUnavailable)
}

func TestSummarizer_NoTexts(t *testing.T) {
	s, err := llm.NewSummarizer(&fakeModel{reply: "x"}, llm.SummarizerConfig{})
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSummarizerConfig_InvalidTemperature(t *testing.T) {
	_, err := llm.NewSummarizer(&fakeModel{}, llm.SummarizerConfig{Temperature: 1.5})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}
