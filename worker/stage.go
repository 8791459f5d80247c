package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// stageTracker moves a job through its worker stages and remembers the
// current one so failures can name it.
type stageTracker struct {
	jobs  storage.JobRepository
	jobID string
	stage core.JobStatus
}

func newStageTracker(jobs storage.JobRepository, job *core.Job) *stageTracker {
	stage := job.Status
	if stage == "" {
		stage = core.JobStatusProcessingSource
	}
	return &stageTracker{jobs: jobs, jobID: job.Id, stage: stage}
}

// enter sets the job status to stage with a matching progress snapshot.
func (s *stageTracker) enter(ctx context.Context, stage core.JobStatus, percent int, message string) error {
	s.stage = stage
	progress := core.Progress{Stage: string(stage), Percent: percent, Message: message}
	if _, err := s.jobs.Update(ctx, s.jobID, core.JobPatch{Status: &stage, Progress: &progress}); err != nil {
		return s.wrap(fmt.Errorf("update progress: %w", err))
	}
	return nil
}

// report updates progress without changing the stage.
func (s *stageTracker) report(ctx context.Context, percent int, message string) error {
	progress := core.Progress{Stage: string(s.stage), Percent: percent, Message: message}
	if _, err := s.jobs.Update(ctx, s.jobID, core.JobPatch{Progress: &progress}); err != nil {
		return s.wrap(fmt.Errorf("update progress: %w", err))
	}
	return nil
}

// link records the object the job produced.
func (s *stageTracker) link(ctx context.Context, objectID core.ID) error {
	if _, err := s.jobs.Update(ctx, s.jobID, core.JobPatch{RelatedObjectId: &objectID}); err != nil {
		return s.wrap(fmt.Errorf("link object %d: %w", objectID, err))
	}
	return nil
}

// handoff parks the job in vectorizing until the chunking coordinator
// reports back.
func (s *stageTracker) handoff(ctx context.Context) error {
	s.stage = core.JobStatusVectorizing
	status := core.JobStatusVectorizing
	chunking := core.ChunkingStatusPending
	progress := core.Progress{Stage: string(status), Percent: 90, Message: "Waiting for chunking and embedding"}
	_, err := s.jobs.Update(ctx, s.jobID, core.JobPatch{
		Status:         &status,
		Progress:       &progress,
		ChunkingStatus: &chunking,
	})
	if err != nil {
		return s.wrap(fmt.Errorf("hand off to chunking: %w", err))
	}
	return nil
}

// withdraw undoes handoff after the object could not be published, so the
// coordinator never reconciles a job whose object it will not see. It
// returns cause.
func (s *stageTracker) withdraw(ctx context.Context, cause error) error {
	s.stage = core.JobStatusPersistingData
	status := core.JobStatusPersistingData
	chunking := core.ChunkingStatusNone
	if _, err := s.jobs.Update(ctx, s.jobID, core.JobPatch{Status: &status, ChunkingStatus: &chunking}); err != nil {
		return errors.Join(cause, s.wrap(fmt.Errorf("withdraw handoff: %w", err)))
	}
	return cause
}

// wrap adds the job id and current stage to err.
func (s *stageTracker) wrap(err error) error {
	return fmt.Errorf("job %s: %s: %w", s.jobID, s.stage, err)
}
