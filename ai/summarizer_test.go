package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestModelSummarizer(t *testing.T) {
	ctx := context.Background()

	t.Run("parses fenced json", func(t *testing.T) {
		model := fake.NewFakeLLM([]string{"```json\n{\"summary\": \"A short abstract.\"}\n```"})
		s := NewModelSummarizer(model, 0)

		summary, err := s.Summarize(ctx, "Title", "Some long document text.")
		require.NoError(t, err)
		assert.Equal(t, "A short abstract.", summary)
	})

	t.Run("retries malformed json", func(t *testing.T) {
		model := fake.NewFakeLLM([]string{"not json", `{"summary": "Second try."}`})
		s := NewModelSummarizer(model, 0)

		summary, err := s.Summarize(ctx, "", "Document.")
		require.NoError(t, err)
		assert.Equal(t, "Second try.", summary)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		model := fake.NewFakeLLM([]string{"nope"})
		s := NewModelSummarizer(model, 0)

		_, err := s.Summarize(ctx, "", "Document.")
		assert.Error(t, err)
	})

	t.Run("empty summary", func(t *testing.T) {
		model := fake.NewFakeLLM([]string{`{"summary": "  "}`})
		s := NewModelSummarizer(model, 0)

		_, err := s.Summarize(ctx, "", "Document.")
		assert.ErrorIs(t, err, ErrEmptySummary)
	})

	t.Run("blank input skips the model", func(t *testing.T) {
		model := fake.NewFakeLLM(nil)
		s := NewModelSummarizer(model, 0)

		summary, err := s.Summarize(ctx, "Title", "   ")
		require.NoError(t, err)
		assert.Empty(t, summary)
	})

	t.Run("transport error is returned", func(t *testing.T) {
		// A fake with no responses fails every call.
		model := fake.NewFakeLLM(nil)
		s := NewModelSummarizer(model, 10)

		_, err := s.Summarize(ctx, "", strings.Repeat("word ", 100))
		assert.Error(t, err)
	})
}
