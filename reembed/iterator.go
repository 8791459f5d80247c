// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"

	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

const (
	// DefaultBatchSize is the default number of objects to embed in each batch
	DefaultBatchSize = 20
)

// ObjectIterator walks embedded objects in batches, oldest first.
type ObjectIterator struct {
	repo      storage.ObjectRepository
	batchSize int
}

// NewObjectIterator creates a new object iterator.
// batchSize: number of objects per batch (<= 0 selects DefaultBatchSize)
func NewObjectIterator(repo storage.ObjectRepository, batchSize int) *ObjectIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ObjectIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Pending returns the embedded objects with an id greater than after.
// Object ids come from a sequence, so they grow with creation time.
func (it *ObjectIterator) Pending(ctx context.Context, after core.ID) ([]*core.Object, error) {
	objects, err := it.repo.ListByStatus(ctx, core.ObjectStatusEmbedded, 0)
	if err != nil {
		return nil, err
	}

	pending := objects[:0]
	for _, object := range objects {
		if object.Id > after {
			pending = append(pending, object)
		}
	}
	return pending, nil
}

// ForEach calls fn for each batch of embedded objects with an id greater
// than after. Iteration stops on the first error from fn.
// Context cancellation is checked between batches.
func (it *ObjectIterator) ForEach(ctx context.Context, after core.ID, fn func([]*core.Object) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	objects, err := it.Pending(ctx, after)
	if err != nil {
		return err
	}

	for i := 0; i < len(objects); i += it.batchSize {
		end := min(i+it.batchSize, len(objects))
		if err := fn(objects[i:end]); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
