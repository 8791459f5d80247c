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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// CheckpointName identifies reembedding progress in the checkpoint store.
const CheckpointName = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of objects to embed per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of objects)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Restart ignores a saved checkpoint and re-embeds every object
	Restart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder re-embeds every embedded object in the database.
type Reembedder struct {
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *ObjectIterator
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	objects storage.ObjectRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorStore,
	checkpoints storage.CheckpointRepository,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}

	return &Reembedder{
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(chunks, vectors, embedder, config.MaxRetries, config.RetryDelay),
		iterator:    NewObjectIterator(objects, config.BatchSize),
		logger:      slog.Default().With("processor", CheckpointName),
	}
}

// Run re-embeds every embedded object, resuming after the last checkpoint
// unless the config asks for a restart. The checkpoint is cleared once the
// pass completes.
func (r *Reembedder) Run(ctx context.Context) error {
	var after core.ID
	processed := 0
	if r.config.Restart {
		if err := r.checkpoints.ClearCheckpoint(ctx, CheckpointName); err != nil {
			return fmt.Errorf("clear checkpoint: %w", err)
		}
	} else {
		checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if checkpoint != nil {
			after = checkpoint.LastID
			processed = checkpoint.Processed
			fmt.Fprintf(r.progress, "Resuming after object %d (%d objects already done)\n", after, processed)
		}
	}

	pending, err := r.iterator.Pending(ctx, after)
	if err != nil {
		return fmt.Errorf("query objects: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintf(r.progress, "No objects to reembed\n")
		return r.checkpoints.ClearCheckpoint(ctx, CheckpointName)
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d objects (batch size: %d)\n",
		len(pending), r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, len(pending), r.config.ReportInterval)
	tracker.Start()

	documents := 0
	err = r.iterator.ForEach(ctx, after, func(objects []*core.Object) error {
		written, err := r.processor.Process(ctx, objects)
		if err != nil {
			return fmt.Errorf("process batch: %w", err)
		}
		documents += written
		processed += len(objects)

		last := objects[len(objects)-1]
		if err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
			ProcessorType: CheckpointName,
			LastID:        last.Id,
			Processed:     processed,
		}); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		r.logger.Debug("batch reembedded", "objects", len(objects), "documents", written, "lastId", last.Id)

		tracker.Increment(len(objects))
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()
	if err := r.checkpoints.ClearCheckpoint(ctx, CheckpointName); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d objects (%d documents) in %v\n",
		len(pending), documents, elapsed.Round(time.Millisecond))

	return nil
}
