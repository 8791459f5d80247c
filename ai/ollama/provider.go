package ollama

import (
	"log/slog"

	"github.com/poiesic/gleanit/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider implements ai.AIProvider against Ollama's native API.
// Ollama serves chat and embeddings from separate model handles, so the
// provider keeps one client per model.
type Provider struct {
	embedder   *ai.TextEmbedder
	chat       *ollama.LLM
	summarizer *ai.ModelSummarizer
	logger     *slog.Logger
}

// NewProvider creates a new Ollama provider with the given configuration.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedClient, err := ollama.New(
		ollama.WithServerURL(config.EmbeddingHost),
		ollama.WithModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	embedder, err := ai.NewTextEmbedder(embedClient, "ollama-embedder")
	if err != nil {
		return nil, err
	}

	chat, err := ollama.New(
		ollama.WithServerURL(config.ChatHost),
		ollama.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Provider{
		embedder:   embedder,
		chat:       chat,
		summarizer: ai.NewModelSummarizer(chat, 0),
		logger:     slog.Default().With("component", "ollama-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Summarizer returns the document summarizer.
func (p *Provider) Summarizer() ai.Summarizer {
	return p.summarizer
}

// ChatModel returns the chat model.
func (p *Provider) ChatModel() llms.Model {
	return p.chat
}

// Close is a no-op; the HTTP clients hold no resources.
func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	return nil
}
