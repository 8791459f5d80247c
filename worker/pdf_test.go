package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/gleanit/ai/mock"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/storage"
	"github.com/poiesic/gleanit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdfText = `Quarterly report

Revenue grew in every region. The board approved the new plan and the
hiring targets for next year.`

func fixedPages(n int) PageCounter {
	return func(path string) (int, error) { return n, nil }
}

func staticText(text string) TextExtractor {
	return TextExtractorFunc(func(ctx context.Context, path string) (string, error) {
		return text, nil
	})
}

func writeSourcePDF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newPDFWorker(t *testing.T, objects storage.ObjectRepository, repos *badger.Repositories, extractor TextExtractor, storageDir string, opts ...Option) *PDFWorker {
	t.Helper()
	opts = append([]Option{WithPageCounter(fixedPages(3))}, opts...)
	w, err := NewPDFWorker(repos.Jobs, objects, mock.NewMockSummarizer(), extractor, storageDir, opts...)
	require.NoError(t, err)
	return w
}

func TestNewPDFWorker_Validation(t *testing.T) {
	repos := newTestRepositories(t)

	_, err := NewPDFWorker(repos.Jobs, repos.Objects, mock.NewMockSummarizer(), nil, t.TempDir())
	assert.ErrorIs(t, err, ErrTextExtractorRequired)
	_, err = NewPDFWorker(repos.Jobs, repos.Objects, mock.NewMockSummarizer(), staticText(""), "")
	assert.ErrorIs(t, err, ErrStorageDirRequired)
}

func TestPDFWorker_StoresCopyAndHandsOff(t *testing.T) {
	repos := newTestRepositories(t)
	storageDir := t.TempDir()
	var extractedFrom string
	extractor := TextExtractorFunc(func(ctx context.Context, path string) (string, error) {
		extractedFrom = path
		return pdfText, nil
	})
	w := newPDFWorker(t, repos.Objects, repos, extractor, storageDir)
	ctx := context.Background()

	source := writeSourcePDF(t, "%PDF-1.7 fake")
	job, err := repos.Jobs.Create(ctx, core.JobTypePDF, source, 0, &core.PDFJobData{},
		storage.WithOriginalFileName("Q3 Report.pdf"))
	require.NoError(t, err)
	job, err = repos.Jobs.MarkAsStarted(ctx, job.Id)
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, job))

	stored := getJob(t, repos, job.Id)
	assert.Equal(t, core.JobStatusVectorizing, stored.Status)
	assert.Equal(t, core.ChunkingStatusPending, stored.ChunkingStatus)

	object, err := repos.Objects.GetObject(ctx, stored.RelatedObjectId)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusParsed, object.Status)
	assert.Equal(t, "Q3 Report", object.Title)
	assert.Equal(t, source, object.Source)
	assert.Equal(t, filepath.Join(storageDir, object.ContentHash+".pdf"), object.FilePath)
	assert.Equal(t, object.FilePath, extractedFrom)
	assert.Equal(t, "Quarterly report\n\nRevenue grew in every region. The board approved the new plan and the hiring targets for next year.", object.Text)

	copied, err := os.ReadFile(object.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(copied))
}

func TestPDFWorker_Duplicate(t *testing.T) {
	repos := newTestRepositories(t)
	w := newPDFWorker(t, repos.Objects, repos, staticText(pdfText), t.TempDir())
	ctx := context.Background()

	first := startJob(t, repos, core.JobTypePDF, writeSourcePDF(t, "same bytes"), nil)
	require.NoError(t, w.Process(ctx, first))

	second := startJob(t, repos, core.JobTypePDF, writeSourcePDF(t, "same bytes"), nil)
	require.NoError(t, w.Process(ctx, second))

	stored := getJob(t, repos, second.Id)
	assert.Equal(t, core.JobStatusCompleted, stored.Status)
	assert.Equal(t, getJob(t, repos, first.Id).RelatedObjectId, stored.RelatedObjectId)
}

func TestPDFWorker_MissingFileIsPermanent(t *testing.T) {
	repos := newTestRepositories(t)
	w := newPDFWorker(t, repos.Objects, repos, staticText(pdfText), t.TempDir())

	job := startJob(t, repos, core.JobTypePDF, filepath.Join(t.TempDir(), "gone.pdf"), nil)
	err := w.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, queue.KindPermanent, queue.Classify(err))
}

func TestPDFWorker_CorruptFileIsPermanent(t *testing.T) {
	repos := newTestRepositories(t)
	storageDir := t.TempDir()
	w := newPDFWorker(t, repos.Objects, repos, staticText(pdfText), storageDir,
		WithPageCounter(func(path string) (int, error) { return 0, errors.New("xref table not found") }))

	job := startJob(t, repos, core.JobTypePDF, writeSourcePDF(t, "garbage"), nil)
	err := w.Process(context.Background(), job)
	require.ErrorIs(t, err, ErrInvalidPDF)
	assert.Equal(t, queue.KindPermanent, queue.Classify(err))

	entries, err := os.ReadDir(storageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// failingObjects rejects every new object.
type failingObjects struct {
	storage.ObjectRepository
}

func (failingObjects) AddObject(ctx context.Context, object *core.Object) (*core.Object, error) {
	return nil, errors.New("database is locked")
}

func TestPDFWorker_RemovesCopyWhenObjectIsNotSaved(t *testing.T) {
	repos := newTestRepositories(t)
	storageDir := t.TempDir()
	w := newPDFWorker(t, failingObjects{repos.Objects}, repos, staticText(pdfText), storageDir)

	job := startJob(t, repos, core.JobTypePDF, writeSourcePDF(t, "%PDF rollback"), nil)
	err := w.Process(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), job.Id)
	assert.Equal(t, queue.KindTransient, queue.Classify(err))

	entries, err := os.ReadDir(storageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, getJob(t, repos, job.Id).RelatedObjectId)
}

// racingObjects runs before ahead of the first AddObject, as if another
// worker stored the same content in between.
type racingObjects struct {
	storage.ObjectRepository
	before func()
}

func (r *racingObjects) AddObject(ctx context.Context, object *core.Object) (*core.Object, error) {
	if r.before != nil {
		before := r.before
		r.before = nil
		before()
	}
	return r.ObjectRepository.AddObject(ctx, object)
}

func TestPDFWorker_LosingTheObjectRaceKeepsTheCopy(t *testing.T) {
	repos := newTestRepositories(t)
	storageDir := t.TempDir()
	ctx := context.Background()

	source := writeSourcePDF(t, "%PDF shared")
	first := startJob(t, repos, core.JobTypePDF, source, nil)
	second := startJob(t, repos, core.JobTypePDF, source, nil)

	winner := newPDFWorker(t, repos.Objects, repos, staticText(pdfText), storageDir)
	objects := &racingObjects{ObjectRepository: repos.Objects}
	objects.before = func() {
		require.NoError(t, winner.Process(ctx, second))
	}
	loser := newPDFWorker(t, objects, repos, staticText(pdfText), storageDir)

	require.NoError(t, loser.Process(ctx, first))

	won := getJob(t, repos, second.Id)
	assert.Equal(t, core.JobStatusVectorizing, won.Status)
	lost := getJob(t, repos, first.Id)
	assert.Equal(t, core.JobStatusCompleted, lost.Status)
	assert.Equal(t, won.RelatedObjectId, lost.RelatedObjectId)

	object, err := repos.Objects.GetObject(ctx, won.RelatedObjectId)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusParsed, object.Status)
	assert.FileExists(t, object.FilePath)
}

func TestPDFWorker_ExtractionFailureMarksObject(t *testing.T) {
	repos := newTestRepositories(t)
	extractor := TextExtractorFunc(func(ctx context.Context, path string) (string, error) {
		return "", errors.New("extractor crashed")
	})
	w := newPDFWorker(t, repos.Objects, repos, extractor, t.TempDir())
	ctx := context.Background()

	job := startJob(t, repos, core.JobTypePDF, writeSourcePDF(t, "%PDF extraction"), nil)
	err := w.Process(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(core.JobStatusParsingContent))

	stored := getJob(t, repos, job.Id)
	require.NotZero(t, stored.RelatedObjectId)
	object, err := repos.Objects.GetObject(ctx, stored.RelatedObjectId)
	require.NoError(t, err)
	assert.Equal(t, core.ObjectStatusError, object.Status)
	assert.FileExists(t, object.FilePath)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
	dest := filepath.Join(dir, "nested", "dest.pdf")

	created, err := copyFile(src, dest)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = copyFile(src, dest)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = copyFile(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "other.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
