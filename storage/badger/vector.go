package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// VectorStore implements storage.VectorStore on top of BadgerDB.
// Documents are embedded on write and searched by brute force dot product,
// which assumes the embedder returns normalized vectors.
type VectorStore struct {
	backend  *Backend
	embedder storage.Embedder
	logger   *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a new VectorStore that embeds documents with embedder.
func NewVectorStore(backend *Backend, embedder storage.Embedder) *VectorStore {
	return &VectorStore{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default().With("component", "vector-store"),
	}
}

// AddDocuments embeds docs that carry no vector and upserts all of them in
// one transaction.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []core.VectorDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var (
		texts   []string
		missing []int
	)
	for i := range docs {
		if len(docs[i].Vector) == 0 {
			texts = append(texts, docs[i].Content)
			missing = append(missing, i)
		}
	}

	if len(texts) > 0 {
		s.logger.Debug("embedding documents", "count", len(texts))
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: expected %d, received %d", storage.ErrEmbeddingMismatch, len(texts), len(vectors))
		}
		for j, i := range missing {
			docs[i].Vector = vectors[j]
		}
	}

	return s.backend.Update(func(tx *badger.Txn) error {
		for i := range docs {
			value, err := storage.MarshalVectorDocument(&docs[i])
			if err != nil {
				return err
			}
			if err := tx.Set(makeVectorKey(docs[i].Id), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDocuments removes documents by id.
func (s *VectorStore) DeleteDocuments(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDocument retrieves a document by id.
func (s *VectorStore) GetDocument(ctx context.Context, id string) (*core.VectorDocument, error) {
	var doc *core.VectorDocument
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeVectorKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			doc, unmarshalErr = storage.UnmarshalVectorDocument(val)
			return unmarshalErr
		})
	}, false)
	return doc, err
}

// FindSimilar finds documents similar to the given vector.
func (s *VectorStore) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.DocumentMatch, error) {
	var results []*core.DocumentMatch

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc *core.VectorDocument
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalVectorDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if doc == nil || len(doc.Vector) == 0 {
				continue
			}

			similarity := dotProduct(vector, doc.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.DocumentMatch{
					Document: doc,
					Score:    similarity,
				})
			}
		}

		return nil
	}, false)

	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.DocumentMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}
