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

package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
	"golang.org/x/sync/semaphore"
)

// DefaultInterval is how often a running coordinator looks for parsed objects.
const DefaultInterval = 2 * time.Second

// Chunker splits an object's text into ordered chunks.
// chunker.Agent satisfies it.
type Chunker interface {
	Chunk(ctx context.Context, objectID core.ID, text string) ([]core.Chunk, error)
}

// ChunkerFunc adapts a function to the Chunker interface.
type ChunkerFunc func(ctx context.Context, objectID core.ID, text string) ([]core.Chunk, error)

// Chunk implements Chunker.
func (f ChunkerFunc) Chunk(ctx context.Context, objectID core.ID, text string) ([]core.Chunk, error) {
	return f(ctx, objectID, text)
}

// Coordinator chunks and embeds parsed objects one at a time.
type Coordinator struct {
	jobs     storage.JobRepository
	objects  storage.ObjectRepository
	chunks   storage.ChunkRepository
	vectors  storage.VectorStore
	chunker  Chunker
	interval time.Duration
	logger   *slog.Logger

	// guard admits one tick at a time
	guard *semaphore.Weighted

	mu       sync.Mutex
	stop     context.CancelFunc
	loopDone chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithInterval sets how often Start's loop calls Tick.
func WithInterval(interval time.Duration) Option {
	return func(c *Coordinator) error {
		if interval <= 0 {
			interval = DefaultInterval
		}
		c.interval = interval
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(
	jobs storage.JobRepository,
	objects storage.ObjectRepository,
	chunks storage.ChunkRepository,
	vectors storage.VectorStore,
	chunker Chunker,
	opts ...Option,
) (*Coordinator, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if objects == nil {
		return nil, ErrObjectRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}

	c := &Coordinator{
		jobs:     jobs,
		objects:  objects,
		chunks:   chunks,
		vectors:  vectors,
		chunker:  chunker,
		interval: DefaultInterval,
		logger:   slog.Default(),
		guard:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chunking")
	return c, nil
}

// Tick processes at most one parsed object. It reports whether an object was
// claimed. A tick that finds another tick still running returns immediately.
// Chunking failures are recorded on the object and its job, not returned;
// the error is reserved for store failures.
func (c *Coordinator) Tick(ctx context.Context) (bool, error) {
	if !c.guard.TryAcquire(1) {
		c.logger.Debug("previous tick still running, skipping")
		return false, nil
	}
	defer c.guard.Release(1)

	object, err := c.objects.OldestWithStatus(ctx, core.ObjectStatusParsed)
	if err != nil {
		return false, fmt.Errorf("find parsed object: %w", err)
	}
	if object == nil {
		return false, nil
	}

	claimed, err := c.objects.ClaimObject(ctx, object.Id, core.ObjectStatusParsed, core.ObjectStatusEmbedding)
	if err != nil {
		return false, fmt.Errorf("claim object %d: %w", object.Id, err)
	}
	if !claimed {
		c.logger.Debug("object claimed elsewhere, abandoning tick", "objectId", object.Id)
		return false, nil
	}

	logger := c.logger.With("objectId", object.Id)
	logger.Info("chunking object", "title", object.Title)

	count, procErr := c.process(ctx, object)
	if procErr != nil {
		logger.Error("chunking failed", "err", procErr)
		if err := c.objects.UpdateStatus(ctx, object.Id, core.ObjectStatusEmbeddingFailed, procErr.Error()); err != nil {
			return true, fmt.Errorf("mark object %d failed: %w", object.Id, err)
		}
	} else {
		if err := c.objects.UpdateStatus(ctx, object.Id, core.ObjectStatusEmbedded, ""); err != nil {
			return true, fmt.Errorf("mark object %d embedded: %w", object.Id, err)
		}
		logger.Info("object embedded", "chunks", count)
	}

	if err := c.reconcile(ctx, object.Id, procErr); err != nil {
		return true, err
	}
	return true, nil
}

// process chunks object and writes its chunks and vector documents.
// It returns the number of chunks stored.
func (c *Coordinator) process(ctx context.Context, object *core.Object) (int, error) {
	chunks, err := c.chunker.Chunk(ctx, object.Id, object.Text)
	if err != nil {
		return 0, err
	}

	previous, err := c.chunks.CountChunks(ctx, object.Id)
	if err != nil {
		return 0, fmt.Errorf("count chunks of object %d: %w", object.Id, err)
	}
	if err := c.chunks.ReplaceChunks(ctx, object.Id, chunks); err != nil {
		return 0, fmt.Errorf("store chunks of object %d: %w", object.Id, err)
	}

	// A shorter chunk set leaves documents past the new end behind.
	if previous > len(chunks) {
		stale := make([]string, 0, previous-len(chunks))
		for idx := len(chunks); idx < previous; idx++ {
			stale = append(stale, core.VectorDocumentID(object.Id, idx))
		}
		if err := c.vectors.DeleteDocuments(ctx, stale...); err != nil {
			return 0, fmt.Errorf("delete stale documents of object %d: %w", object.Id, err)
		}
	}

	if err := c.vectors.AddDocuments(ctx, Documents(object, chunks)); err != nil {
		return 0, fmt.Errorf("upsert documents of object %d: %w", object.Id, err)
	}
	return len(chunks), nil
}

// Documents builds one vector document per chunk of object.
func Documents(object *core.Object, chunks []core.Chunk) []core.VectorDocument {
	docs := make([]core.VectorDocument, len(chunks))
	for i, chunk := range chunks {
		docs[i] = core.VectorDocument{
			Id:      core.VectorDocumentID(object.Id, chunk.ChunkIdx),
			Content: chunk.Content,
			Metadata: core.DocumentMetadata{
				ObjectId:     object.Id,
				ChunkIdx:     chunk.ChunkIdx,
				Summary:      chunk.Summary,
				Tags:         chunk.Tags,
				Propositions: chunk.Propositions,
				Source:       object.Source,
				Title:        object.Title,
			},
		}
	}
	return docs
}

// reconcile completes the job waiting on objectID, recording how chunking went.
func (c *Coordinator) reconcile(ctx context.Context, objectID core.ID, chunkErr error) error {
	job, err := c.jobs.FindJobAwaitingChunking(ctx, objectID)
	if err != nil {
		return fmt.Errorf("find job for object %d: %w", objectID, err)
	}
	if job == nil {
		return nil
	}

	status := core.ChunkingStatusDone
	errorInfo := ""
	if chunkErr != nil {
		status = core.ChunkingStatusFailed
		errorInfo = chunkErr.Error()
	}
	patch := core.JobPatch{ChunkingStatus: &status, ChunkingErrorInfo: &errorInfo}
	if _, err := c.jobs.Update(ctx, job.Id, patch); err != nil {
		return fmt.Errorf("update chunking status of job %s: %w", job.Id, err)
	}
	if err := c.jobs.MarkAsCompleted(ctx, job.Id, objectID); err != nil {
		return fmt.Errorf("complete job %s: %w", job.Id, err)
	}
	c.logger.Debug("job reconciled", "jobId", job.Id, "objectId", objectID, "chunkingStatus", status)
	return nil
}

// ResetFailed moves every embedding_failed object back to parsed and re-arms
// the jobs that produced them. It returns the number of objects reset.
func (c *Coordinator) ResetFailed(ctx context.Context) (int, error) {
	failed, err := c.objects.ListByStatus(ctx, core.ObjectStatusEmbeddingFailed, 0)
	if err != nil {
		return 0, fmt.Errorf("list failed objects: %w", err)
	}

	reset := 0
	for _, object := range failed {
		claimed, err := c.objects.ClaimObject(ctx, object.Id, core.ObjectStatusEmbeddingFailed, core.ObjectStatusParsed)
		if err != nil {
			return reset, fmt.Errorf("reset object %d: %w", object.Id, err)
		}
		if !claimed {
			continue
		}
		reset++

		jobs, err := c.jobs.FindJobsForObject(ctx, object.Id)
		if err != nil {
			return reset, fmt.Errorf("find jobs for object %d: %w", object.Id, err)
		}
		for _, job := range jobs {
			if job.ChunkingStatus != core.ChunkingStatusFailed {
				continue
			}
			status := core.JobStatusVectorizing
			chunking := core.ChunkingStatusPending
			errorInfo := ""
			progress := core.Progress{Stage: string(status), Percent: 90, Message: "Waiting for chunking and embedding"}
			_, err := c.jobs.Update(ctx, job.Id, core.JobPatch{
				Status:            &status,
				Progress:          &progress,
				ChunkingStatus:    &chunking,
				ChunkingErrorInfo: &errorInfo,
			})
			if err != nil {
				return reset, fmt.Errorf("re-arm job %s: %w", job.Id, err)
			}
		}
	}

	if reset > 0 {
		c.logger.Info("reset failed objects", "count", reset)
	}
	return reset, nil
}

// recoverStranded returns objects left in embedding by a previous process
// to parsed.
func (c *Coordinator) recoverStranded(ctx context.Context) (int, error) {
	stranded, err := c.objects.ListByStatus(ctx, core.ObjectStatusEmbedding, 0)
	if err != nil {
		return 0, fmt.Errorf("list stranded objects: %w", err)
	}
	recovered := 0
	for _, object := range stranded {
		claimed, err := c.objects.ClaimObject(ctx, object.Id, core.ObjectStatusEmbedding, core.ObjectStatusParsed)
		if err != nil {
			return recovered, fmt.Errorf("recover object %d: %w", object.Id, err)
		}
		if claimed {
			recovered++
		}
	}
	return recovered, nil
}

// Start recovers objects interrupted mid-chunking and begins polling in the
// background.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.loopDone = make(chan struct{})
	done := c.loopDone
	c.mu.Unlock()

	recovered, err := c.recoverStranded(ctx)
	if err != nil {
		c.logger.Error("error recovering stranded objects", "err", err)
	} else if recovered > 0 {
		c.logger.Info("recovered stranded objects", "count", recovered)
	}

	go c.loop(loopCtx, done)
	c.logger.Info("coordinator started", "interval", c.interval)
	return nil
}

func (c *Coordinator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Ticks outlive Stop; only new ticks are prevented.
	tickCtx := context.WithoutCancel(ctx)
	for {
		if _, err := c.Tick(tickCtx); err != nil {
			c.logger.Error("error processing object", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts polling. A tick already running is left to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.stop, c.loopDone
	c.stop = nil
	c.loopDone = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("coordinator stopped")
}

// Wait blocks until no tick is running or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	if err := c.guard.Acquire(ctx, 1); err != nil {
		return err
	}
	c.guard.Release(1)
	return nil
}
