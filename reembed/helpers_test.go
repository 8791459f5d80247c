package reembed

import (
	"context"
	"fmt"
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

// seedEmbedded stores an embedded object with n chunks and no vector documents.
func seedEmbedded(t *testing.T, repos *badger.Repositories, name string, n int) *core.Object {
	t.Helper()
	ctx := context.Background()

	object, err := repos.Objects.AddObject(ctx, &core.Object{
		Kind:        core.JobTypeURL,
		Source:      "https://example.com/" + name,
		Title:       name,
		Text:        "text of " + name,
		ContentHash: core.HashContent([]byte(name)),
		Status:      core.ObjectStatusEmbedded,
	})
	require.NoError(t, err)

	chunks := make([]core.Chunk, n)
	for i := range chunks {
		chunks[i] = core.Chunk{
			ObjectId: object.Id,
			ChunkIdx: i,
			Content:  fmt.Sprintf("%s chunk %d", name, i),
		}
	}
	require.NoError(t, repos.Chunks.ReplaceChunks(ctx, object.Id, chunks))
	return object
}

func documentCount(t *testing.T, repos *badger.Repositories) int {
	t.Helper()
	matches, err := repos.Vectors.FindSimilar(context.Background(), mock.Vector("probe"), -2, 0)
	require.NoError(t, err)
	return len(matches)
}

// unnormalized returns vectors of length 2 per text.
func unnormalized(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{3, 4}
	}
	return vectors, nil
}
