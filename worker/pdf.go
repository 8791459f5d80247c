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

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/storage"
)

// TextExtractor pulls plain text out of a stored PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// TextExtractorFunc adapts a function to the TextExtractor interface.
type TextExtractorFunc func(ctx context.Context, path string) (string, error)

// ExtractText implements TextExtractor.
func (f TextExtractorFunc) ExtractText(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// PageCounter validates a PDF and returns its page count.
type PageCounter func(path string) (int, error)

// CountPDFPages validates path with pdfcpu in relaxed mode and returns the
// number of pages.
func CountPDFPages(path string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, err
	}
	return api.PageCountFile(path)
}

// PDFWorker ingests PDF files. The source file is copied into the storage
// directory under its content hash before text is extracted.
type PDFWorker struct {
	*ingester
	extractor   TextExtractor
	storageDir  string
	pageCounter PageCounter
}

// NewPDFWorker creates a worker for pdf jobs that keeps file copies in storageDir.
func NewPDFWorker(jobs storage.JobRepository, objects storage.ObjectRepository, summarizer ai.Summarizer, extractor TextExtractor, storageDir string, opts ...Option) (*PDFWorker, error) {
	if extractor == nil {
		return nil, ErrTextExtractorRequired
	}
	if storageDir == "" {
		return nil, ErrStorageDirRequired
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	in, err := newIngester(jobs, objects, summarizer, o, core.JobTypePDF)
	if err != nil {
		return nil, err
	}
	return &PDFWorker{
		ingester:    in,
		extractor:   extractor,
		storageDir:  storageDir,
		pageCounter: o.pageCounter,
	}, nil
}

// Process validates, stores and parses the PDF named by the job.
// It satisfies queue.Processor.
func (w *PDFWorker) Process(ctx context.Context, job *core.Job) error {
	tracker := newStageTracker(w.jobs, job)

	if _, ok := job.Data.(*core.PDFJobData); !ok && job.Data != nil {
		return tracker.wrap(queue.MarkPermanent(fmt.Errorf("%w: %T", core.ErrJobDataMismatch, job.Data)))
	}

	source := job.SourceIdentifier
	if err := tracker.report(ctx, 10, "Reading "+filepath.Base(source)); err != nil {
		return err
	}
	raw, err := os.ReadFile(source)
	if err != nil {
		return tracker.wrap(fmt.Errorf("read source: %w", err))
	}

	pages, err := w.pageCounter(source)
	if err != nil {
		return tracker.wrap(queue.MarkPermanent(fmt.Errorf("%w: %w", ErrInvalidPDF, err)))
	}
	if pages == 0 {
		return tracker.wrap(queue.MarkPermanent(fmt.Errorf("%w: no pages", ErrInvalidPDF)))
	}

	hash := core.HashContent(raw)
	dup, resume, err := w.lookup(ctx, job, hash)
	if err != nil {
		return tracker.wrap(err)
	}
	if dup != nil {
		return w.completeDuplicate(ctx, job, tracker, dup)
	}

	dest := filepath.Join(w.storageDir, hash+".pdf")
	created, err := copyFile(source, dest)
	if err != nil {
		return tracker.wrap(fmt.Errorf("store copy: %w", err))
	}

	object, dup, err := w.saveObject(ctx, job, tracker, resume, core.Object{
		Kind:        core.JobTypePDF,
		Source:      source,
		FilePath:    dest,
		ContentHash: hash,
	})
	if err != nil {
		// Another object may own the hash, and with it the copy.
		if object == nil && created && !errors.Is(err, storage.ErrDuplicateKey) {
			if rmErr := os.Remove(dest); rmErr != nil {
				w.logger.Error("error removing stored copy", "path", dest, "err", rmErr)
			}
		}
		return w.abandon(ctx, object, err)
	}
	if dup != nil {
		return w.completeDuplicate(ctx, job, tracker, dup)
	}

	if err := tracker.enter(ctx, core.JobStatusParsingContent, 30, fmt.Sprintf("Extracting text from %d pages", pages)); err != nil {
		return w.abandon(ctx, object, err)
	}
	text, err := w.extractor.ExtractText(ctx, dest)
	if err != nil {
		return w.abandon(ctx, object, tracker.wrap(fmt.Errorf("extract text: %w", err)))
	}
	text = normalizeText(text)

	parsed := core.ParsedContent{
		Title:  pdfTitle(job),
		Text:   text,
		Length: len([]rune(text)),
	}
	if err := w.finish(ctx, job, tracker, object, parsed); err != nil {
		return w.abandon(ctx, object, err)
	}
	return nil
}

// copyFile copies src to dest and reports whether dest was newly created.
// An existing dest is left in place since its name is the content hash.
func copyFile(src, dest string) (created bool, err error) {
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".copy-*")
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return false, err
	}
	if err = tmp.Close(); err != nil {
		return false, err
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return false, err
	}
	return true, nil
}

func pdfTitle(job *core.Job) string {
	name := job.OriginalFileName
	if name == "" {
		name = filepath.Base(job.SourceIdentifier)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
