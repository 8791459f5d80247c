package worker

import (
	"context"
	"testing"

	"github.com/poiesic/gleanit/ai/mock"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage/badger"
	"github.com/stretchr/testify/require"
)

func newTestRepositories(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

// startJob creates a job and claims it the way the dispatcher does.
func startJob(t *testing.T, repos *badger.Repositories, jobType core.JobType, source string, data core.JobData) *core.Job {
	t.Helper()
	ctx := context.Background()
	job, err := repos.Jobs.Create(ctx, jobType, source, 0, data)
	require.NoError(t, err)
	started, err := repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	return started
}

// restartJob schedules a retry for job and claims it again.
func restartJob(t *testing.T, repos *badger.Repositories, job *core.Job) *core.Job {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.Jobs.MarkAsRetryable(ctx, job.Id, "retry", "test", 0))
	started, err := repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)
	return started
}

func getJob(t *testing.T, repos *badger.Repositories, id string) *core.Job {
	t.Helper()
	job, err := repos.Jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}
