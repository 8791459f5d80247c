package storage

import (
	"context"
	"time"

	"github.com/poiesic/gleanit/core"
)

// JobRepository is the durable job store.
// Every mutation is a single-row read-modify-write keyed by job id.
// Implementations must be thread-safe and support concurrent access.
type JobRepository interface {
	// Create inserts a new job with status queued and zero attempts.
	// A nil data payload is replaced with the zero variant for jobType.
	Create(ctx context.Context, jobType core.JobType, sourceIdentifier string, priority int, data core.JobData, opts ...CreateOption) (*core.Job, error)

	// GetJob retrieves a job by id.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.Job, error)

	// GetNextJobs returns up to limit runnable jobs: queued, or retry_pending whose
	// NextAttemptAt has passed. Ordered by priority descending then creation time.
	// When jobTypes is non-empty only those types are returned.
	GetNextJobs(ctx context.Context, limit int, jobTypes ...core.JobType) ([]*core.Job, error)

	// MarkAsStarted moves a runnable job to processing_source, increments
	// Attempts and stamps LastAttemptAt. Returns the updated job.
	// Returns core.ErrInvalidTransition if the job is not runnable.
	MarkAsStarted(ctx context.Context, id string) (*core.Job, error)

	// MarkAsCompleted moves a job to completed and records the object it produced.
	// Clears ErrorInfo and FailedStage.
	MarkAsCompleted(ctx context.Context, id string, relatedObjectID core.ID) error

	// MarkAsRetryable moves a job to retry_pending due after delay.
	MarkAsRetryable(ctx context.Context, id string, errorInfo, failedStage string, delay time.Duration) error

	// MarkAsFailed moves a job to the terminal failed state.
	MarkAsFailed(ctx context.Context, id string, errorInfo, failedStage string) error

	// MarkAsCancelled moves a queued or retry_pending job to cancelled.
	// Returns core.ErrInvalidTransition for any other state.
	MarkAsCancelled(ctx context.Context, id string) error

	// Update applies a field patch and reports whether the row changed.
	// A missing job reports false with no error.
	Update(ctx context.Context, id string, patch core.JobPatch) (bool, error)

	// FindJobAwaitingChunking returns the job that produced objectID and still has
	// ChunkingStatus pending, or nil if there is none.
	FindJobAwaitingChunking(ctx context.Context, objectID core.ID) (*core.Job, error)

	// FindJobsForObject returns every job that references objectID.
	FindJobsForObject(ctx context.Context, objectID core.ID) ([]*core.Job, error)

	// ListJobs returns jobs ordered by creation time, optionally filtered by status.
	ListJobs(ctx context.Context, statuses ...core.JobStatus) ([]*core.Job, error)

	// RequeueInterrupted moves jobs left in a worker stage by a previous process
	// to retry_pending due now. Returns the number of jobs moved.
	RequeueInterrupted(ctx context.Context) (int, error)

	// PurgeFinished deletes terminal jobs last updated before olderThan.
	// Returns the number of jobs removed.
	PurgeFinished(ctx context.Context, olderThan time.Time) (int, error)
}

// CreateOption sets optional fields on a job at creation.
type CreateOption func(*core.Job)

// WithOriginalFileName records the user facing file name of an upload.
func WithOriginalFileName(name string) CreateOption {
	return func(j *core.Job) {
		j.OriginalFileName = name
	}
}

// ObjectRepository stores content objects.
type ObjectRepository interface {
	// AddObject stores a new object and assigns its ID from a sequence.
	// Sets CreatedAt and UpdatedAt. Returns ErrDuplicateKey if another object
	// already owns the content hash.
	AddObject(ctx context.Context, object *core.Object) (*core.Object, error)

	// UpdateObject replaces an existing object.
	// Returns ErrNotFound if the object doesn't exist.
	UpdateObject(ctx context.Context, object *core.Object) (*core.Object, error)

	// GetObject retrieves an object by ID.
	// Returns ErrNotFound if the object doesn't exist.
	GetObject(ctx context.Context, id core.ID) (*core.Object, error)

	// DeleteObject removes an object and its indices.
	// Returns ErrNotFound if the object doesn't exist.
	DeleteObject(ctx context.Context, id core.ID) error

	// FindByContentHash returns the object owning hash, or nil if there is none.
	FindByContentHash(ctx context.Context, hash string) (*core.Object, error)

	// OldestWithStatus returns the least recently created object in status, or nil.
	OldestWithStatus(ctx context.Context, status core.ObjectStatus) (*core.Object, error)

	// ListByStatus returns up to limit objects in status, oldest first.
	// A limit <= 0 returns all of them.
	ListByStatus(ctx context.Context, status core.ObjectStatus, limit int) ([]*core.Object, error)

	// UpdateStatus sets the status and error text of an object.
	// Returns ErrNotFound if the object doesn't exist.
	UpdateStatus(ctx context.Context, id core.ID, status core.ObjectStatus, errorInfo string) error

	// ClaimObject atomically moves an object from one status to another.
	// Returns false without error when the object is no longer in from,
	// including when a concurrent claim won the race.
	ClaimObject(ctx context.Context, id core.ID, from, to core.ObjectStatus) (bool, error)

	// FailObject moves an object from status from to error, recording
	// errorInfo. Returns false without error when the object has moved on.
	FailObject(ctx context.Context, id core.ID, from core.ObjectStatus, errorInfo string) (bool, error)
}

// ChunkRepository stores the chunks of each object.
type ChunkRepository interface {
	// ReplaceChunks stores chunks for objectID in one write, removing any
	// previous chunk set. Chunks must pass core.ValidateChunks.
	ReplaceChunks(ctx context.Context, objectID core.ID, chunks []core.Chunk) error

	// GetChunks returns the chunks of an object ordered by ChunkIdx.
	GetChunks(ctx context.Context, objectID core.ID) ([]core.Chunk, error)

	// CountChunks returns how many chunks an object has.
	CountChunks(ctx context.Context, objectID core.ID) (int, error)

	// DeleteChunks removes every chunk of an object.
	DeleteChunks(ctx context.Context, objectID core.ID) error
}

// VectorStore holds embedded chunk documents.
type VectorStore interface {
	// AddDocuments embeds and stores documents. Documents with an existing id
	// are overwritten.
	AddDocuments(ctx context.Context, docs []core.VectorDocument) error

	// DeleteDocuments removes documents by id. Missing ids are ignored.
	DeleteDocuments(ctx context.Context, ids ...string) error

	// GetDocument retrieves a document by id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.VectorDocument, error)

	// FindSimilar returns documents with similarity >= minSimilarity, best first,
	// up to limit results.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.DocumentMatch, error)
}

// CheckpointRepository persists progress of resumable maintenance passes.
type CheckpointRepository interface {
	// SaveCheckpoint stores checkpoint under its ProcessorType, replacing any
	// previous one.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns the checkpoint for processorType, or nil if none exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for processorType.
	ClearCheckpoint(ctx context.Context, processorType string) error
}

// Embedder turns document text into vectors for a VectorStore.
// ai.Embedder satisfies it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
