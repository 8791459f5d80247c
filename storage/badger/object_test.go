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

func newTestObject(text string) *core.Object {
	return &core.Object{
		Kind:        core.JobTypeURL,
		Source:      "https://example.com/" + text,
		Title:       "Title " + text,
		Text:        text,
		ContentHash: core.HashContent([]byte(text)),
	}
}

func TestObjectBasics(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	added, err := repos.Objects.AddObject(ctx, newTestObject("first"))
	require.NoError(t, err)
	assert.NotZero(t, added.Id)
	assert.Equal(t, core.ObjectStatusNew, added.Status)
	assert.False(t, added.CreatedAt.IsZero())

	fetched, err := repos.Objects.GetObject(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, "first", fetched.Text)
	assert.Equal(t, added.ContentHash, fetched.ContentHash)

	second, err := repos.Objects.AddObject(ctx, newTestObject("second"))
	require.NoError(t, err)
	assert.Greater(t, second.Id, added.Id)

	_, err = repos.Objects.GetObject(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAddObject_DuplicateHash(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	_, err := repos.Objects.AddObject(ctx, newTestObject("same"))
	require.NoError(t, err)

	_, err = repos.Objects.AddObject(ctx, newTestObject("same"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestFindByContentHash(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	added, err := repos.Objects.AddObject(ctx, newTestObject("hashed"))
	require.NoError(t, err)

	found, err := repos.Objects.FindByContentHash(ctx, core.HashContent([]byte("hashed")))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, added.Id, found.Id)

	missing, err := repos.Objects.FindByContentHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateObject(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	added, err := repos.Objects.AddObject(ctx, &core.Object{Kind: core.JobTypePDF, Source: "/tmp/a.pdf"})
	require.NoError(t, err)
	createdAt := added.CreatedAt

	added.Text = "now with text"
	added.ContentHash = core.HashContent([]byte(added.Text))
	added.Status = core.ObjectStatusParsed
	updated, err := repos.Objects.UpdateObject(ctx, added)
	require.NoError(t, err)
	assert.Equal(t, createdAt, updated.CreatedAt)

	found, err := repos.Objects.FindByContentHash(ctx, added.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, added.Id, found.Id)

	parsed, err := repos.Objects.ListByStatus(ctx, core.ObjectStatusParsed, 0)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	fresh, err := repos.Objects.ListByStatus(ctx, core.ObjectStatusNew, 0)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	_, err = repos.Objects.UpdateObject(ctx, &core.Object{Id: 4242})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateObject_HashOwnedElsewhere(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	owner, err := repos.Objects.AddObject(ctx, newTestObject("owned"))
	require.NoError(t, err)
	other, err := repos.Objects.AddObject(ctx, newTestObject("other"))
	require.NoError(t, err)

	other.ContentHash = owner.ContentHash
	_, err = repos.Objects.UpdateObject(ctx, other)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestDeleteObject(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	added, err := repos.Objects.AddObject(ctx, newTestObject("gone"))
	require.NoError(t, err)

	require.NoError(t, repos.Objects.DeleteObject(ctx, added.Id))

	_, err = repos.Objects.GetObject(ctx, added.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	found, err := repos.Objects.FindByContentHash(ctx, added.ContentHash)
	require.NoError(t, err)
	assert.Nil(t, found)
	listed, err := repos.Objects.ListByStatus(ctx, core.ObjectStatusNew, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	assert.ErrorIs(t, repos.Objects.DeleteObject(ctx, added.Id), storage.ErrNotFound)
}

func TestOldestWithStatus(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	none, err := repos.Objects.OldestWithStatus(ctx, core.ObjectStatusParsed)
	require.NoError(t, err)
	assert.Nil(t, none)

	var ids []core.ID
	for _, text := range []string{"a", "b", "c"} {
		obj := newTestObject(text)
		obj.Status = core.ObjectStatusParsed
		added, err := repos.Objects.AddObject(ctx, obj)
		require.NoError(t, err)
		ids = append(ids, added.Id)
		time.Sleep(2 * time.Millisecond)
	}

	oldest, err := repos.Objects.OldestWithStatus(ctx, core.ObjectStatusParsed)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, ids[0], oldest.Id)

	require.NoError(t, repos.Objects.UpdateStatus(ctx, ids[0], core.ObjectStatusEmbedded, ""))

	oldest, err = repos.Objects.OldestWithStatus(ctx, core.ObjectStatusParsed)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, ids[1], oldest.Id)

	limited, err := repos.Objects.ListByStatus(ctx, core.ObjectStatusParsed, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpdateStatus(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	added, err := repos.Objects.AddObject(ctx, newTestObject("status"))
	require.NoError(t, err)

	require.NoError(t, repos.Objects.UpdateStatus(ctx, added.Id, core.ObjectStatusError, "fetch failed"))

	fetched, err := repos.Objects.GetObject(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusError, fetched.Status)
	assert.Equal(t, "fetch failed", fetched.ErrorInfo)

	assert.ErrorIs(t, repos.Objects.UpdateStatus(ctx, 777, core.ObjectStatusError, ""), storage.ErrNotFound)
}

func TestClaimObject(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	obj := newTestObject("claim")
	obj.Status = core.ObjectStatusParsed
	added, err := repos.Objects.AddObject(ctx, obj)
	require.NoError(t, err)

	claimed, err := repos.Objects.ClaimObject(ctx, added.Id, core.ObjectStatusParsed, core.ObjectStatusEmbedding)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repos.Objects.ClaimObject(ctx, added.Id, core.ObjectStatusParsed, core.ObjectStatusEmbedding)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = repos.Objects.ClaimObject(ctx, 31337, core.ObjectStatusParsed, core.ObjectStatusEmbedding)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFailObject(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	obj := newTestObject("fail")
	obj.Status = core.ObjectStatusFetched
	added, err := repos.Objects.AddObject(ctx, obj)
	require.NoError(t, err)

	failed, err := repos.Objects.FailObject(ctx, added.Id, core.ObjectStatusFetched, "fetch timed out")
	require.NoError(t, err)
	assert.True(t, failed)

	stored, err := repos.Objects.GetObject(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusError, stored.Status)
	assert.Equal(t, "fetch timed out", stored.ErrorInfo)

	t.Run("leaves parsed objects alone", func(t *testing.T) {
		obj := newTestObject("parsed")
		obj.Status = core.ObjectStatusParsed
		added, err := repos.Objects.AddObject(ctx, obj)
		require.NoError(t, err)

		failed, err := repos.Objects.FailObject(ctx, added.Id, core.ObjectStatusFetched, "late failure")
		require.NoError(t, err)
		assert.False(t, failed)

		stored, err := repos.Objects.GetObject(ctx, added.Id)
		require.NoError(t, err)
		assert.Equal(t, core.ObjectStatusParsed, stored.Status)
		assert.Empty(t, stored.ErrorInfo)
	})

	_, err = repos.Objects.FailObject(ctx, 31337, core.ObjectStatusFetched, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClaimObject_ConcurrentClaimsOnce(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	obj := newTestObject("race")
	obj.Status = core.ObjectStatusParsed
	added, err := repos.Objects.AddObject(ctx, obj)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.Objects.ClaimObject(ctx, added.Id, core.ObjectStatusParsed, core.ObjectStatusEmbedding)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
	fetched, err := repos.Objects.GetObject(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusEmbedding, fetched.Status)
}
