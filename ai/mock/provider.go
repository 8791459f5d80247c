package mock

import (
	"github.com/poiesic/gleanit/ai"
	"github.com/tmc/langchaingo/llms"
)

// MockProvider is a test double for ai.AIProvider.
// It aggregates the mock services.
type MockProvider struct {
	embedder   *MockEmbedder
	summarizer *MockSummarizer
	chat       *MockChatModel
}

// NewMockProvider creates a mock provider with default mock services.
// Returns ai.AIProvider interface for consistency with production providers.
// Use GetMockEmbedder() and friends to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(NewMockEmbedder(), NewMockSummarizer(), NewMockChatModel())
}

// NewMockProviderWithServices creates a mock provider with custom services.
func NewMockProviderWithServices(embedder *MockEmbedder, summarizer *MockSummarizer, chat *MockChatModel) *MockProvider {
	return &MockProvider{
		embedder:   embedder,
		summarizer: summarizer,
		chat:       chat,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Summarizer returns the mock summarizer.
func (p *MockProvider) Summarizer() ai.Summarizer {
	return p.summarizer
}

// ChatModel returns the mock chat model.
func (p *MockProvider) ChatModel() llms.Model {
	return p.chat
}

// Close is a no-op for the mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the concrete mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockSummarizer returns the concrete mock summarizer for test assertions.
func (p *MockProvider) GetMockSummarizer() *MockSummarizer {
	return p.summarizer
}

// GetMockChatModel returns the concrete mock chat model for test assertions.
func (p *MockProvider) GetMockChatModel() *MockChatModel {
	return p.chat
}
