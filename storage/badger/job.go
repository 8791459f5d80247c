package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
//
// Besides the primary row each job keeps two indices: a dispatch index that
// holds queued and retry_pending jobs in priority order, and a job-by-object
// index used to reconcile jobs once their object has been chunked.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) *JobRepository {
	return &JobRepository{
		backend: backend,
	}
}

// Create inserts a new queued job.
func (r *JobRepository) Create(ctx context.Context, jobType core.JobType, sourceIdentifier string, priority int, data core.JobData, opts ...storage.CreateOption) (*core.Job, error) {
	job := &core.Job{
		Id:               uuid.NewString(),
		JobType:          jobType,
		SourceIdentifier: sourceIdentifier,
		Status:           core.JobStatusQueued,
		Priority:         priority,
		Data:             data,
		Progress:         core.Progress{Stage: string(core.JobStatusQueued), Message: "Waiting in queue"},
	}
	for _, opt := range opts {
		opt(job)
	}
	if err := core.ValidateJob(job); err != nil {
		return nil, err
	}
	if job.Data == nil {
		payload, err := core.NewJobData(jobType)
		if err != nil {
			return nil, err
		}
		job.Data = payload
	}

	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	err := r.backend.Update(func(tx *badger.Txn) error {
		return r.writeJob(tx, nil, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readJob(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: job %s", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// GetNextJobs walks the dispatch index in priority order.
func (r *JobRepository) GetNextJobs(ctx context.Context, limit int, jobTypes ...core.JobType) ([]*core.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobRunnablePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			var jobID string
			if err := iter.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			}); err != nil {
				return err
			}

			job, err := r.readJob(tx, jobID)
			if err != nil {
				return err
			}
			if job == nil || !job.IsRunnable(now) {
				continue
			}
			if len(jobTypes) > 0 && !slices.Contains(jobTypes, job.JobType) {
				continue
			}
			results = append(results, job)
		}
		return nil
	}, false)

	return results, err
}

// MarkAsStarted claims a runnable job for one dispatch attempt.
func (r *JobRepository) MarkAsStarted(ctx context.Context, id string) (*core.Job, error) {
	return r.mutate(id, func(job *core.Job, now time.Time) error {
		if job.Status != core.JobStatusQueued && job.Status != core.JobStatusRetryPending {
			return fmt.Errorf("%w: job %s cannot start from %s", core.ErrInvalidTransition, id, job.Status)
		}
		job.Status = core.JobStatusProcessingSource
		job.Attempts++
		job.LastAttemptAt = now
		job.NextAttemptAt = time.Time{}
		job.Progress = core.Progress{
			Stage:   string(core.JobStatusProcessingSource),
			Message: fmt.Sprintf("Starting attempt %d", job.Attempts),
		}
		return nil
	})
}

// MarkAsCompleted finishes a job and records the object it produced.
func (r *JobRepository) MarkAsCompleted(ctx context.Context, id string, relatedObjectID core.ID) error {
	_, err := r.mutate(id, func(job *core.Job, now time.Time) error {
		if job.Status == core.JobStatusCancelled || job.Status == core.JobStatusFailed {
			return fmt.Errorf("%w: job %s cannot complete from %s", core.ErrInvalidTransition, id, job.Status)
		}
		job.Status = core.JobStatusCompleted
		job.CompletedAt = now
		job.ErrorInfo = ""
		job.FailedStage = ""
		job.Progress = core.Progress{Stage: string(core.JobStatusCompleted), Percent: 100, Message: "Completed"}
		if relatedObjectID != 0 {
			job.RelatedObjectId = relatedObjectID
		}
		return nil
	})
	return err
}

// MarkAsRetryable schedules another attempt after delay.
func (r *JobRepository) MarkAsRetryable(ctx context.Context, id string, errorInfo, failedStage string, delay time.Duration) error {
	_, err := r.mutate(id, func(job *core.Job, now time.Time) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job %s cannot retry from %s", core.ErrInvalidTransition, id, job.Status)
		}
		job.Status = core.JobStatusRetryPending
		job.ErrorInfo = core.TruncateErrorInfo(errorInfo)
		job.FailedStage = failedStage
		job.NextAttemptAt = now.Add(delay)
		job.Progress.Message = fmt.Sprintf("Retry scheduled for %s", job.NextAttemptAt.Format(time.RFC3339))
		return nil
	})
	return err
}

// MarkAsFailed moves a job to the terminal failed state.
func (r *JobRepository) MarkAsFailed(ctx context.Context, id string, errorInfo, failedStage string) error {
	_, err := r.mutate(id, func(job *core.Job, now time.Time) error {
		if job.Status == core.JobStatusCancelled {
			return fmt.Errorf("%w: job %s is cancelled", core.ErrInvalidTransition, id)
		}
		job.Status = core.JobStatusFailed
		job.ErrorInfo = core.TruncateErrorInfo(errorInfo)
		job.FailedStage = failedStage
		job.NextAttemptAt = time.Time{}
		job.Progress.Message = "Failed"
		return nil
	})
	return err
}

// MarkAsCancelled cancels a job that has not started.
func (r *JobRepository) MarkAsCancelled(ctx context.Context, id string) error {
	_, err := r.mutate(id, func(job *core.Job, now time.Time) error {
		if job.Status != core.JobStatusQueued && job.Status != core.JobStatusRetryPending {
			return fmt.Errorf("%w: job %s cannot be cancelled from %s", core.ErrInvalidTransition, id, job.Status)
		}
		job.Status = core.JobStatusCancelled
		job.NextAttemptAt = time.Time{}
		job.Progress.Message = "Cancelled"
		return nil
	})
	return err
}

// Update applies a patch. A missing job reports no change.
func (r *JobRepository) Update(ctx context.Context, id string, patch core.JobPatch) (bool, error) {
	if patch.Progress != nil {
		if err := core.ValidateProgress(*patch.Progress); err != nil {
			return false, err
		}
	}

	changed := false
	err := r.backend.Update(func(tx *badger.Txn) error {
		changed = false
		old, err := r.readJob(tx, id)
		if err != nil || old == nil {
			return err
		}
		job := *old
		if !patch.Apply(&job) {
			return nil
		}
		job.UpdatedAt = time.Now().UTC()
		changed = true
		return r.writeJob(tx, old, &job)
	})
	return changed, err
}

// FindJobAwaitingChunking scans the jobs of an object for a pending handoff.
func (r *JobRepository) FindJobAwaitingChunking(ctx context.Context, objectID core.ID) (*core.Job, error) {
	jobs, err := r.FindJobsForObject(ctx, objectID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.ChunkingStatus == core.ChunkingStatusPending {
			return job, nil
		}
	}
	return nil, nil
}

// FindJobsForObject returns every job that references objectID, oldest first.
func (r *JobRepository) FindJobsForObject(ctx context.Context, objectID core.ID) ([]*core.Job, error) {
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialJobObjectKey(objectID)
		for _, key := range scanKeys(tx, prefix) {
			job, err := r.readJob(tx, string(key[len(prefix):]))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sortByCreation(results)
	return results, nil
}

// ListJobs returns jobs ordered by creation time.
func (r *JobRepository) ListJobs(ctx context.Context, statuses ...core.JobStatus) ([]*core.Job, error) {
	var results []*core.Job
	err := r.scanJobs(func(job *core.Job) {
		if len(statuses) == 0 || slices.Contains(statuses, job.Status) {
			results = append(results, job)
		}
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(results)
	return results, nil
}

// RequeueInterrupted returns jobs stranded in a worker stage to the queue.
func (r *JobRepository) RequeueInterrupted(ctx context.Context) (int, error) {
	var stranded []string
	err := r.scanJobs(func(job *core.Job) {
		if job.Status.IsWorking() {
			stranded = append(stranded, job.Id)
		}
	})
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, id := range stranded {
		_, err := r.mutate(id, func(job *core.Job, now time.Time) error {
			if !job.Status.IsWorking() {
				return errSkip
			}
			job.FailedStage = string(job.Status)
			job.ErrorInfo = "interrupted before the attempt finished"
			job.Status = core.JobStatusRetryPending
			job.NextAttemptAt = now
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// PurgeFinished deletes old terminal jobs and their indices.
func (r *JobRepository) PurgeFinished(ctx context.Context, olderThan time.Time) (int, error) {
	var expired []string
	err := r.scanJobs(func(job *core.Job) {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(olderThan) {
			expired = append(expired, job.Id)
		}
	})
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, id := range expired {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		err := r.backend.Update(func(tx *badger.Txn) error {
			job, err := r.readJob(tx, id)
			if err != nil || job == nil {
				return err
			}
			return r.deleteJob(tx, job)
		})
		if err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// errSkip aborts a mutation without writing.
var errSkip = errors.New("skip")

// mutate runs a read-modify-write on one job and returns the stored result.
func (r *JobRepository) mutate(id string, fn func(job *core.Job, now time.Time) error) (*core.Job, error) {
	var result *core.Job
	err := r.backend.Update(func(tx *badger.Txn) error {
		old, err := r.readJob(tx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: job %s", storage.ErrNotFound, id)
		}
		job := *old
		now := time.Now().UTC()
		if err := fn(&job, now); err != nil {
			return err
		}
		job.UpdatedAt = now
		result = &job
		return r.writeJob(tx, old, &job)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanJobs visits every stored job.
func (r *JobRepository) scanJobs(visit func(job *core.Job)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var job *core.Job
			err := iter.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalJob(val)
				return err
			})
			if err != nil {
				return err
			}
			visit(job)
		}
		return nil
	}, false)
}

// readJob reads a job within a transaction.
// Returns nil, nil if the job doesn't exist.
func (r *JobRepository) readJob(tx *badger.Txn, id string) (*core.Job, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}

// writeJob stores job and moves its index entries away from the state in old.
// old is nil for new jobs.
func (r *JobRepository) writeJob(tx *badger.Txn, old, job *core.Job) error {
	value, err := storage.MarshalJob(job)
	if err != nil {
		return err
	}
	if err := tx.Set(makeJobKey(job.Id), value); err != nil {
		return err
	}

	if old != nil && isQueuedStatus(old.Status) {
		if err := tx.Delete(makeRunnableKey(old.Priority, old.CreatedAt, old.Id)); err != nil {
			return err
		}
	}
	if isQueuedStatus(job.Status) {
		if err := tx.Set(makeRunnableKey(job.Priority, job.CreatedAt, job.Id), []byte(job.Id)); err != nil {
			return err
		}
	}

	if old != nil && old.RelatedObjectId != 0 && old.RelatedObjectId != job.RelatedObjectId {
		if err := tx.Delete(makeJobObjectKey(old.RelatedObjectId, old.Id)); err != nil {
			return err
		}
	}
	if job.RelatedObjectId != 0 {
		if err := tx.Set(makeJobObjectKey(job.RelatedObjectId, job.Id), nil); err != nil {
			return err
		}
	}
	return nil
}

// deleteJob removes a job and its index entries.
func (r *JobRepository) deleteJob(tx *badger.Txn, job *core.Job) error {
	if isQueuedStatus(job.Status) {
		if err := tx.Delete(makeRunnableKey(job.Priority, job.CreatedAt, job.Id)); err != nil {
			return err
		}
	}
	if job.RelatedObjectId != 0 {
		if err := tx.Delete(makeJobObjectKey(job.RelatedObjectId, job.Id)); err != nil {
			return err
		}
	}
	return tx.Delete(makeJobKey(job.Id))
}

// isQueuedStatus reports whether a job in status belongs in the dispatch index.
func isQueuedStatus(status core.JobStatus) bool {
	return status == core.JobStatusQueued || status == core.JobStatusRetryPending
}

func sortByCreation(jobs []*core.Job) {
	slices.SortStableFunc(jobs, func(a, b *core.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare([]byte(a.Id), []byte(b.Id))
	})
}
