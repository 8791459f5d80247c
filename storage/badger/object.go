package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// ObjectRepository implements storage.ObjectRepository for BadgerDB.
type ObjectRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ObjectRepository = (*ObjectRepository)(nil)

// NewObjectRepository creates a new ObjectRepository.
func NewObjectRepository(backend *Backend) (*ObjectRepository, error) {
	idSeq, err := backend.GetSequence(objectIDSeq)
	if err != nil {
		return nil, err
	}

	return &ObjectRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ObjectRepository) Close() error {
	return r.idSeq.Release()
}

// AddObject stores a new object.
func (r *ObjectRepository) AddObject(ctx context.Context, object *core.Object) (*core.Object, error) {
	if object.Status == "" {
		object.Status = core.ObjectStatusNew
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		if object.ContentHash != "" {
			owner, err := r.readHashOwner(tx, object.ContentHash)
			if err != nil {
				return err
			}
			if owner != 0 {
				return fmt.Errorf("%w: content hash already owned by object %d", storage.ErrDuplicateKey, owner)
			}
		}

		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = r.idSeq.Next()
			if err != nil {
				return err
			}
		}
		object.Id = core.ID(nextID)
		object.CreatedAt = time.Now().UTC()
		object.UpdatedAt = object.CreatedAt

		return r.writeObject(tx, nil, object)
	})
	if err != nil {
		return nil, err
	}
	return object, nil
}

// UpdateObject replaces an existing object.
func (r *ObjectRepository) UpdateObject(ctx context.Context, object *core.Object) (*core.Object, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		old, err := r.readObject(tx, object.Id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: object %d", storage.ErrNotFound, object.Id)
		}

		if object.ContentHash != "" && object.ContentHash != old.ContentHash {
			owner, err := r.readHashOwner(tx, object.ContentHash)
			if err != nil {
				return err
			}
			if owner != 0 && owner != object.Id {
				return fmt.Errorf("%w: content hash already owned by object %d", storage.ErrDuplicateKey, owner)
			}
		}

		object.CreatedAt = old.CreatedAt
		object.UpdatedAt = time.Now().UTC()
		return r.writeObject(tx, old, object)
	})
	if err != nil {
		return nil, err
	}
	return object, nil
}

// GetObject retrieves an object by ID.
func (r *ObjectRepository) GetObject(ctx context.Context, id core.ID) (*core.Object, error) {
	var result *core.Object
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readObject(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: object %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// DeleteObject removes an object and its indices.
func (r *ObjectRepository) DeleteObject(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		object, err := r.readObject(tx, id)
		if err != nil {
			return err
		}
		if object == nil {
			return fmt.Errorf("%w: object %d", storage.ErrNotFound, id)
		}

		if object.ContentHash != "" {
			if err := tx.Delete(makeObjectHashKey(object.ContentHash)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeObjectStatusKey(object.Status, object.CreatedAt, object.Id)); err != nil {
			return err
		}
		return tx.Delete(makeObjectKey(id))
	})
}

// FindByContentHash looks up the object owning a content hash.
func (r *ObjectRepository) FindByContentHash(ctx context.Context, hash string) (*core.Object, error) {
	var result *core.Object
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		owner, err := r.readHashOwner(tx, hash)
		if err != nil || owner == 0 {
			return err
		}
		result, err = r.readObject(tx, owner)
		return err
	}, false)
	return result, err
}

// OldestWithStatus returns the first object in the status index.
func (r *ObjectRepository) OldestWithStatus(ctx context.Context, status core.ObjectStatus) (*core.Object, error) {
	objects, err := r.ListByStatus(ctx, status, 1)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	return objects[0], nil
}

// ListByStatus walks the status index oldest first.
func (r *ObjectRepository) ListByStatus(ctx context.Context, status core.ObjectStatus, limit int) ([]*core.Object, error) {
	var results []*core.Object
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialObjectStatusKey(status)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}

			var objectID core.ID
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				objectID, err = storage.UnmarshalID(val)
				return err
			}); err != nil {
				return err
			}

			object, err := r.readObject(tx, objectID)
			if err != nil {
				return err
			}
			if object != nil {
				results = append(results, object)
			}
		}
		return nil
	}, false)

	return results, err
}

// UpdateStatus sets the status and error text of an object.
func (r *ObjectRepository) UpdateStatus(ctx context.Context, id core.ID, status core.ObjectStatus, errorInfo string) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		old, err := r.readObject(tx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: object %d", storage.ErrNotFound, id)
		}
		object := *old
		object.Status = status
		object.ErrorInfo = core.TruncateErrorInfo(errorInfo)
		object.UpdatedAt = time.Now().UTC()
		return r.writeObject(tx, old, &object)
	})
}

// ClaimObject performs a conditional status change in one transaction.
// Badger aborts the later of two overlapping claims with ErrConflict; the
// replay then observes the winner's status and reports false.
func (r *ObjectRepository) ClaimObject(ctx context.Context, id core.ID, from, to core.ObjectStatus) (bool, error) {
	return r.transition(id, from, func(object *core.Object) {
		object.Status = to
	})
}

// FailObject moves an object from from to error in one transaction.
func (r *ObjectRepository) FailObject(ctx context.Context, id core.ID, from core.ObjectStatus, errorInfo string) (bool, error) {
	return r.transition(id, from, func(object *core.Object) {
		object.Status = core.ObjectStatusError
		object.ErrorInfo = core.TruncateErrorInfo(errorInfo)
	})
}

// transition applies change to object id only while it is still in from.
func (r *ObjectRepository) transition(id core.ID, from core.ObjectStatus, change func(*core.Object)) (bool, error) {
	applied := false
	err := r.backend.Update(func(tx *badger.Txn) error {
		applied = false
		old, err := r.readObject(tx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: object %d", storage.ErrNotFound, id)
		}
		if old.Status != from {
			return nil
		}
		object := *old
		change(&object)
		object.UpdatedAt = time.Now().UTC()
		applied = true
		return r.writeObject(tx, old, &object)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// readObject reads an object within a transaction.
// Returns nil, nil if the object doesn't exist.
func (r *ObjectRepository) readObject(tx *badger.Txn, id core.ID) (*core.Object, error) {
	item, err := tx.Get(makeObjectKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var object *core.Object
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		object, unmarshalErr = storage.UnmarshalObject(val)
		return unmarshalErr
	})
	return object, err
}

// readHashOwner returns the object owning hash, or 0.
func (r *ObjectRepository) readHashOwner(tx *badger.Txn, hash string) (core.ID, error) {
	item, err := tx.Get(makeObjectHashKey(hash))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}

	var owner core.ID
	err = item.Value(func(val []byte) error {
		var err error
		owner, err = storage.UnmarshalID(val)
		return err
	})
	return owner, err
}

// writeObject stores object and keeps the hash and status indices in step
// with the previous state in old. old is nil for new objects.
func (r *ObjectRepository) writeObject(tx *badger.Txn, old, object *core.Object) error {
	value, err := storage.MarshalObject(object)
	if err != nil {
		return err
	}
	if err := tx.Set(makeObjectKey(object.Id), value); err != nil {
		return err
	}

	if old != nil && old.ContentHash != "" && old.ContentHash != object.ContentHash {
		if err := tx.Delete(makeObjectHashKey(old.ContentHash)); err != nil {
			return err
		}
	}
	if object.ContentHash != "" {
		if err := tx.Set(makeObjectHashKey(object.ContentHash), storage.MarshalID(object.Id)); err != nil {
			return err
		}
	}

	if old != nil {
		if err := tx.Delete(makeObjectStatusKey(old.Status, old.CreatedAt, old.Id)); err != nil {
			return err
		}
	}
	return tx.Set(makeObjectStatusKey(object.Status, object.CreatedAt, object.Id), storage.MarshalID(object.Id))
}
