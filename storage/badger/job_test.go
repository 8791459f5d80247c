package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories(&stubEmbedder{})
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

func TestJobCreate(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://example.com/a", 0,
		&core.URLJobData{Title: "A", Tags: []string{"go"}})
	require.NoError(t, err)
	assert.NotEmpty(t, job.Id)
	assert.Equal(t, core.JobStatusQueued, job.Status)
	assert.Zero(t, job.Attempts)
	assert.False(t, job.CreatedAt.IsZero())

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", stored.SourceIdentifier)
	data, ok := stored.Data.(*core.URLJobData)
	require.True(t, ok)
	assert.Equal(t, "A", data.Title)
	assert.Equal(t, []string{"go"}, data.Tags)
}

func TestJobCreate_DefaultsPayload(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypePDF, "/tmp/a.pdf", 0, nil, storage.WithOriginalFileName("report.pdf"))
	require.NoError(t, err)

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.IsType(t, &core.PDFJobData{}, stored.Data)
	assert.Equal(t, "report.pdf", stored.OriginalFileName)
}

func TestJobCreate_Invalid(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	_, err := repos.Jobs.Create(ctx, core.JobType("ftp"), "ftp://x", 0, nil)
	assert.ErrorIs(t, err, core.ErrUnknownJobType)

	_, err = repos.Jobs.Create(ctx, core.JobTypeURL, "", 0, nil)
	assert.ErrorIs(t, err, core.ErrEmptySource)

	_, err = repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, &core.PDFJobData{})
	assert.ErrorIs(t, err, core.ErrJobDataMismatch)
}

func TestGetJob_NotFound(t *testing.T) {
	repos := newTestRepositories(t)

	_, err := repos.Jobs.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetNextJobs_Ordering(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	create := func(source string, priority int) *core.Job {
		job, err := repos.Jobs.Create(ctx, core.JobTypeURL, source, priority, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		return job
	}

	low := create("low", -5)
	firstNormal := create("normal-1", 0)
	secondNormal := create("normal-2", 0)
	high := create("high", 10)

	jobs, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, high.Id, jobs[0].Id)
	assert.Equal(t, firstNormal.Id, jobs[1].Id)
	assert.Equal(t, secondNormal.Id, jobs[2].Id)
	assert.Equal(t, low.Id, jobs[3].Id)

	limited, err := repos.Jobs.GetNextJobs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repos.Jobs.GetNextJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetNextJobs_FiltersTypes(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	_, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)
	pdf, err := repos.Jobs.Create(ctx, core.JobTypePDF, "/tmp/x.pdf", 0, nil)
	require.NoError(t, err)

	jobs, err := repos.Jobs.GetNextJobs(ctx, 10, core.JobTypePDF)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pdf.Id, jobs[0].Id)
}

func TestGetNextJobs_SkipsStartedAndDelayed(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	started, err := repos.Jobs.Create(ctx, core.JobTypeURL, "started", 0, nil)
	require.NoError(t, err)
	delayed, err := repos.Jobs.Create(ctx, core.JobTypeURL, "delayed", 0, nil)
	require.NoError(t, err)
	due, err := repos.Jobs.Create(ctx, core.JobTypeURL, "due", 0, nil)
	require.NoError(t, err)

	_, err = repos.Jobs.MarkAsStarted(ctx, started.Id)
	require.NoError(t, err)

	_, err = repos.Jobs.MarkAsStarted(ctx, delayed.Id)
	require.NoError(t, err)
	require.NoError(t, repos.Jobs.MarkAsRetryable(ctx, delayed.Id, "timeout", "processing_source", time.Hour))

	_, err = repos.Jobs.MarkAsStarted(ctx, due.Id)
	require.NoError(t, err)
	require.NoError(t, repos.Jobs.MarkAsRetryable(ctx, due.Id, "timeout", "processing_source", 0))

	jobs, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.Id, jobs[0].Id)
	assert.Equal(t, core.JobStatusRetryPending, jobs[0].Status)
}

func TestMarkAsStarted(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)

	started, err := repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusProcessingSource, started.Status)
	assert.Equal(t, 1, started.Attempts)
	assert.False(t, started.LastAttemptAt.IsZero())

	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = repos.Jobs.MarkAsStarted(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkAsStarted_ConcurrentClaimsOnce(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repos.Jobs.MarkAsStarted(ctx, job.Id); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
}

func TestMarkAsCompleted(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	require.NoError(t, repos.Jobs.MarkAsRetryable(ctx, job.Id, "boom", "parsing_content", 0))
	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)

	require.NoError(t, repos.Jobs.MarkAsCompleted(ctx, job.Id, 42))

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusCompleted, stored.Status)
	assert.Equal(t, core.ID(42), stored.RelatedObjectId)
	assert.Empty(t, stored.ErrorInfo)
	assert.Empty(t, stored.FailedStage)
	assert.Equal(t, 100, stored.Progress.Percent)
	assert.False(t, stored.CompletedAt.IsZero())

	jobs, err := repos.Jobs.FindJobsForObject(ctx, 42)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.Id, jobs[0].Id)
}

func TestMarkAsRetryable(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)

	delay := 30 * time.Second
	before := time.Now()
	require.NoError(t, repos.Jobs.MarkAsRetryable(ctx, job.Id, "read tcp: ECONNRESET", "processing_source", delay))
	after := time.Now()

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusRetryPending, stored.Status)
	assert.Equal(t, "read tcp: ECONNRESET", stored.ErrorInfo)
	assert.Equal(t, "processing_source", stored.FailedStage)
	assert.Equal(t, 1, stored.Attempts)
	assert.WithinRange(t, stored.NextAttemptAt, before.Add(delay), after.Add(delay))

	next, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, next)

	started, err := repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, started.Attempts)
	assert.True(t, started.NextAttemptAt.IsZero())
}

func TestMarkAsFailed(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)

	longError := string(make([]byte, 4000))
	require.NoError(t, repos.Jobs.MarkAsFailed(ctx, job.Id, longError, "parsing_content"))

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusFailed, stored.Status)
	assert.Equal(t, "parsing_content", stored.FailedStage)
	assert.Len(t, stored.ErrorInfo, core.MaxErrorInfoLength)

	assert.ErrorIs(t, repos.Jobs.MarkAsRetryable(ctx, job.Id, "x", "y", 0), core.ErrInvalidTransition)
}

func TestMarkAsCancelled(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	queued, err := repos.Jobs.Create(ctx, core.JobTypeURL, "queued", 0, nil)
	require.NoError(t, err)
	running, err := repos.Jobs.Create(ctx, core.JobTypeURL, "running", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, running.Id)
	require.NoError(t, err)

	require.NoError(t, repos.Jobs.MarkAsCancelled(ctx, queued.Id))
	assert.ErrorIs(t, repos.Jobs.MarkAsCancelled(ctx, running.Id), core.ErrInvalidTransition)

	jobs, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	assert.ErrorIs(t, repos.Jobs.MarkAsCompleted(ctx, queued.Id, 1), core.ErrInvalidTransition)
}

func TestJobUpdate(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)

	status := core.JobStatusParsingContent
	progress := core.Progress{Stage: string(status), Percent: 40, Message: "Parsing"}
	changed, err := repos.Jobs.Update(ctx, job.Id, core.JobPatch{Status: &status, Progress: &progress})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repos.Jobs.Update(ctx, job.Id, core.JobPatch{Status: &status})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repos.Jobs.Update(ctx, "missing", core.JobPatch{Status: &status})
	require.NoError(t, err)
	assert.False(t, changed)

	bad := core.Progress{Percent: 150}
	_, err = repos.Jobs.Update(ctx, job.Id, core.JobPatch{Progress: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidProgress)

	// Leaving the queued state drops the job from the dispatch index.
	jobs, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFindJobAwaitingChunking(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)

	found, err := repos.Jobs.FindJobAwaitingChunking(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, found)

	objectID := core.ID(7)
	pending := core.ChunkingStatusPending
	vectorizing := core.JobStatusVectorizing
	_, err = repos.Jobs.Update(ctx, job.Id, core.JobPatch{
		Status:          &vectorizing,
		ChunkingStatus:  &pending,
		RelatedObjectId: &objectID,
	})
	require.NoError(t, err)

	found, err = repos.Jobs.FindJobAwaitingChunking(ctx, objectID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.Id, found.Id)

	done := core.ChunkingStatusDone
	_, err = repos.Jobs.Update(ctx, job.Id, core.JobPatch{ChunkingStatus: &done})
	require.NoError(t, err)

	found, err = repos.Jobs.FindJobAwaitingChunking(ctx, objectID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestListJobs(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	first, err := repos.Jobs.Create(ctx, core.JobTypeURL, "a", 0, nil)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := repos.Jobs.Create(ctx, core.JobTypeURL, "b", 9, nil)
	require.NoError(t, err)
	require.NoError(t, repos.Jobs.MarkAsCancelled(ctx, second.Id))

	all, err := repos.Jobs.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.Id, all[0].Id)
	assert.Equal(t, second.Id, all[1].Id)

	cancelled, err := repos.Jobs.ListJobs(ctx, core.JobStatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, second.Id, cancelled[0].Id)
}

func TestRequeueInterrupted(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	job, err := repos.Jobs.Create(ctx, core.JobTypeURL, "https://x", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	_, err = repos.Jobs.Create(ctx, core.JobTypeURL, "https://y", 0, nil)
	require.NoError(t, err)

	moved, err := repos.Jobs.RequeueInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	stored, err := repos.Jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusRetryPending, stored.Status)
	assert.Equal(t, string(core.JobStatusProcessingSource), stored.FailedStage)

	jobs, err := repos.Jobs.GetNextJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestPurgeFinished(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	done, err := repos.Jobs.Create(ctx, core.JobTypeURL, "done", 0, nil)
	require.NoError(t, err)
	_, err = repos.Jobs.MarkAsStarted(ctx, done.Id)
	require.NoError(t, err)
	require.NoError(t, repos.Jobs.MarkAsCompleted(ctx, done.Id, 3))

	queued, err := repos.Jobs.Create(ctx, core.JobTypeURL, "queued", 0, nil)
	require.NoError(t, err)

	purged, err := repos.Jobs.PurgeFinished(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)

	purged, err = repos.Jobs.PurgeFinished(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = repos.Jobs.GetJob(ctx, done.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repos.Jobs.GetJob(ctx, queued.Id)
	require.NoError(t, err)

	jobs, err := repos.Jobs.FindJobsForObject(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
