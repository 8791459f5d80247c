package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/gleanit/ai"
)

// MockSummarizer is a test double for ai.Summarizer.
type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	// If nil, returns the first sentence of text.
	SummarizeFunc func(ctx context.Context, title, text string) (string, error)

	mu        sync.Mutex
	callCount int
}

var _ ai.Summarizer = (*MockSummarizer)(nil)

// NewMockSummarizer creates a mock summarizer with default behavior.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Summarize returns the first sentence of text unless SummarizeFunc is set.
func (m *MockSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, title, text)
	}

	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1], nil
	}
	return text, nil
}

// CallCount returns the number of Summarize calls made.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
