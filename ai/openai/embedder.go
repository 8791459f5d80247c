package openai

import (
	"github.com/poiesic/gleanit/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

// newEmbedder creates the embedding client for config.
// Use "none" as token for local OpenAI-compatible services that don't require authentication.
func newEmbedder(config *ai.Config) (*ai.TextEmbedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	return ai.NewTextEmbedder(client, "openai-embedder")
}

// NewEmbedder creates a standalone embedder, for callers that only search.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config)
}
