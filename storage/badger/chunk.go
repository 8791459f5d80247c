package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Chunks are keyed by object and index, so a prefix scan returns them in order.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
	}
}

// ReplaceChunks swaps the chunk set of an object in one transaction.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, objectID core.ID, chunks []core.Chunk) error {
	if err := core.ValidateChunks(objectID, chunks); err != nil {
		return err
	}

	now := time.Now().UTC()
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, key := range scanKeys(tx, makePartialChunkKey(objectID)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for i := range chunks {
			chunk := chunks[i]
			if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = now
			}
			value, err := storage.MarshalChunk(&chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(makeChunkKey(objectID, chunk.ChunkIdx), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChunks returns the chunks of an object ordered by index.
func (r *ChunkRepository) GetChunks(ctx context.Context, objectID core.ID) ([]core.Chunk, error) {
	var results []core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(objectID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				results = append(results, *chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return results, err
}

// CountChunks counts chunk keys without reading values.
func (r *ChunkRepository) CountChunks(ctx context.Context, objectID core.ID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		count = len(scanKeys(tx, makePartialChunkKey(objectID)))
		return nil
	}, false)
	return count, err
}

// DeleteChunks removes every chunk of an object.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, objectID core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, key := range scanKeys(tx, makePartialChunkKey(objectID)) {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
