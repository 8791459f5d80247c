package chunker

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in text.
type TokenCounter interface {
	CountTokens(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

// CountTokens implements TokenCounter.
func (f TokenCounterFunc) CountTokens(text string) int {
	return f(text)
}

// tiktokenCounter counts tokens with a tiktoken BPE encoding.
type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTiktokenCounter(encoding string) (*tiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", encoding, err)
	}
	return &tiktokenCounter{encoding: enc}, nil
}

func (t *tiktokenCounter) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// estimateTokens approximates cl100k token counts at four characters per token.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenCounter returns a tiktoken counter for encoding. The BPE ranks are
// fetched on first use, so when they cannot be loaded it falls back to a
// character based estimate and logs a warning.
func NewTokenCounter(encoding string, logger *slog.Logger) TokenCounter {
	counter, err := newTiktokenCounter(encoding)
	if err != nil {
		logger.Warn("using estimated token counts", "encoding", encoding, "err", err)
		return TokenCounterFunc(estimateTokens)
	}
	return counter
}
