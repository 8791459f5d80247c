package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/chunking"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
	"golang.org/x/sync/errgroup"
)

// chunkLoaders bounds concurrent chunk reads within a batch.
const chunkLoaders = 4

// BatchProcessor re-embeds the chunks of a batch of objects.
type BatchProcessor struct {
	chunks         storage.ChunkRepository
	vectors        storage.VectorStore
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(chunks storage.ChunkRepository, vectors storage.VectorStore, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		chunks:         chunks,
		vectors:        vectors,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds every chunk of objects and overwrites their vector documents.
// It returns the number of documents written.
func (bp *BatchProcessor) Process(ctx context.Context, objects []*core.Object) (int, error) {
	if len(objects) == 0 {
		return 0, nil
	}

	perObject := make([][]core.VectorDocument, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkLoaders)
	for i, object := range objects {
		g.Go(func() error {
			chunks, err := bp.chunks.GetChunks(gctx, object.Id)
			if err != nil {
				return fmt.Errorf("load chunks of object %d: %w", object.Id, err)
			}
			perObject[i] = chunking.Documents(object, chunks)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var docs []core.VectorDocument
	for _, d := range perObject {
		docs = append(docs, d...)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}
	if len(embeddings) != len(docs) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(docs), len(embeddings))
	}

	for i := range docs {
		docs[i].Vector = NormalizeVector(embeddings[i])
	}

	if err := bp.vectors.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("store documents: %w", err)
	}
	return len(docs), nil
}
