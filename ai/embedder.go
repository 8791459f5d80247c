package ai

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
)

// TextEmbedder implements Embedder on top of any langchaingo embedding client.
type TextEmbedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var _ Embedder = (*TextEmbedder)(nil)

// NewTextEmbedder wraps client. component names the logger.
func NewTextEmbedder(client embeddings.EmbedderClient, component string) (*TextEmbedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &TextEmbedder{
		embedder: embedder,
		logger:   slog.Default().With("component", component),
	}, nil
}

// EmbedText generates an embedding for a single text.
func (e *TextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}

	return vectors[0], nil
}

// EmbedTexts generates embeddings for a batch of texts.
func (e *TextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	return vectors, nil
}
