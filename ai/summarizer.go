package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// DefaultSummaryInputRunes bounds how much of a document is sent to the model.
const DefaultSummaryInputRunes = 12000

// ErrEmptySummary is returned when the model answers with valid JSON but no summary.
var ErrEmptySummary = errors.New("model returned an empty summary")

// ModelSummarizer implements Summarizer with a chat model in JSON mode.
type ModelSummarizer struct {
	model         llms.Model
	maxInputRunes int
	logger        *slog.Logger
}

var _ Summarizer = (*ModelSummarizer)(nil)

type summaryResponse struct {
	Summary string `json:"summary"`
}

// NewModelSummarizer creates a summarizer backed by model.
// maxInputRunes <= 0 selects DefaultSummaryInputRunes.
func NewModelSummarizer(model llms.Model, maxInputRunes int) *ModelSummarizer {
	if maxInputRunes <= 0 {
		maxInputRunes = DefaultSummaryInputRunes
	}
	return &ModelSummarizer{
		model:         model,
		maxInputRunes: maxInputRunes,
		logger:        slog.Default().With("component", "summarizer"),
	}
}

// Summarize asks the model for a short abstract of text.
func (s *ModelSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if runes := []rune(text); len(runes) > s.maxInputRunes {
		text = string(runes[:s.maxInputRunes])
	}

	document := text
	if title != "" {
		document = "Title: " + title + "\n\n" + text
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, summarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, document),
	}

	// Try up to 3 times in case of malformed JSON
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := s.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			s.logger.Error("failed to generate summary", "attempt", attempt+1, "err", err)
			return "", err
		}

		if len(response.Choices) < 1 {
			return "", ErrEmptySummary
		}

		responseText := CleanJSON(response.Choices[0].Content)
		var result summaryResponse
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			s.logger.Warn("error parsing summary response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			if attempt == 0 {
				content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, summaryJSONReminder))
			}
			continue
		}

		summary := strings.TrimSpace(result.Summary)
		if summary == "" {
			return "", ErrEmptySummary
		}
		return summary, nil
	}

	return "", fmt.Errorf("parse summary response: %w", lastErr)
}
