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
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/storage"
)

// ingester holds the steps every worker shares once it has raw content:
// deduplication, the object row, summarizing and the chunking handoff.
type ingester struct {
	jobs       storage.JobRepository
	objects    storage.ObjectRepository
	summarizer ai.Summarizer
	opts       *options
	logger     *slog.Logger
}

func newIngester(jobs storage.JobRepository, objects storage.ObjectRepository, summarizer ai.Summarizer, opts *options, kind core.JobType) (*ingester, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if objects == nil {
		return nil, ErrObjectRepositoryRequired
	}
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}
	return &ingester{
		jobs:       jobs,
		objects:    objects,
		summarizer: summarizer,
		opts:       opts,
		logger:     opts.logger.With("processor", string(kind)),
	}, nil
}

// lookup checks hash against stored objects. It returns dup when another
// job already ingested the same content, or resume when the object belongs
// to an earlier attempt of this job (or was left in error) and should be
// reused.
func (in *ingester) lookup(ctx context.Context, job *core.Job, hash string) (dup, resume *core.Object, err error) {
	existing, err := in.objects.FindByContentHash(ctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup content hash: %w", err)
	}
	if existing == nil {
		return nil, nil, nil
	}
	if existing.Id == job.RelatedObjectId || existing.Status == core.ObjectStatusError {
		return nil, existing, nil
	}
	return existing, nil, nil
}

// completeDuplicate finishes job against an object that already exists.
func (in *ingester) completeDuplicate(ctx context.Context, job *core.Job, tracker *stageTracker, dup *core.Object) error {
	in.logger.Info("duplicate content, skipping", "jobId", job.Id, "objectId", dup.Id, "source", job.SourceIdentifier)
	if err := in.jobs.MarkAsCompleted(ctx, job.Id, dup.Id); err != nil {
		return tracker.wrap(fmt.Errorf("complete duplicate: %w", err))
	}
	return nil
}

// saveObject creates the object row for job, or revives resume, and links
// it to the job straight away. When a concurrent job stored the same content
// first, it returns that object as dup instead.
func (in *ingester) saveObject(ctx context.Context, job *core.Job, tracker *stageTracker, resume *core.Object, object core.Object) (saved, dup *core.Object, err error) {
	object.Status = core.ObjectStatusFetched
	object.ErrorInfo = ""

	if resume != nil {
		object.Id = resume.Id
		saved, err = in.objects.UpdateObject(ctx, &object)
	} else {
		saved, err = in.objects.AddObject(ctx, &object)
	}
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			if winner, _, lookupErr := in.lookup(ctx, job, object.ContentHash); lookupErr == nil && winner != nil {
				return nil, winner, nil
			}
		}
		return nil, nil, tracker.wrap(fmt.Errorf("save object: %w", err))
	}
	if err := tracker.link(ctx, saved.Id); err != nil {
		return saved, nil, err
	}
	return saved, nil, nil
}

// finish summarizes parsed content, stores it on object and either hands the
// job to chunking or completes it. The object only becomes parsed once the
// job is ready to be reconciled.
func (in *ingester) finish(ctx context.Context, job *core.Job, tracker *stageTracker, object *core.Object, parsed core.ParsedContent) error {
	if utf8.RuneCountInString(strings.TrimSpace(parsed.Text)) < in.opts.minContentLength {
		return tracker.wrap(queue.MarkPermanent(fmt.Errorf("%w: %d characters", ErrNoContent, utf8.RuneCountInString(parsed.Text))))
	}

	if err := tracker.enter(ctx, core.JobStatusAIProcessing, 60, "Summarizing content"); err != nil {
		return err
	}
	summary, err := in.summarizer.Summarize(ctx, parsed.Title, parsed.Text)
	if err != nil {
		if !errors.Is(err, ai.ErrEmptySummary) {
			return tracker.wrap(fmt.Errorf("summarize: %w", err))
		}
		in.logger.Warn("no summary produced", "jobId", job.Id, "objectId", object.Id)
	}

	if err := tracker.enter(ctx, core.JobStatusPersistingData, 80, "Saving parsed content"); err != nil {
		return err
	}
	object.Title = parsed.Title
	object.Byline = parsed.Byline
	object.Text = parsed.Text
	object.Summary = summary
	object.Status = core.ObjectStatusFetched
	object.ErrorInfo = ""
	if _, err := in.objects.UpdateObject(ctx, object); err != nil {
		return tracker.wrap(fmt.Errorf("save parsed object: %w", err))
	}

	if in.opts.chunking {
		if err := tracker.handoff(ctx); err != nil {
			return err
		}
		if err := in.publish(ctx, tracker, object); err != nil {
			return tracker.withdraw(ctx, err)
		}
		in.logger.Info("object parsed, waiting for chunking", "jobId", job.Id, "objectId", object.Id)
		return nil
	}

	if err := in.publish(ctx, tracker, object); err != nil {
		return err
	}
	if err := in.jobs.MarkAsCompleted(ctx, job.Id, object.Id); err != nil {
		return tracker.wrap(fmt.Errorf("complete job: %w", err))
	}
	in.logger.Info("object parsed", "jobId", job.Id, "objectId", object.Id)
	return nil
}

// publish moves object from fetched to parsed. It is the worker's last write
// to the object; the chunking coordinator owns it from then on.
func (in *ingester) publish(ctx context.Context, tracker *stageTracker, object *core.Object) error {
	published, err := in.objects.ClaimObject(ctx, object.Id, core.ObjectStatusFetched, core.ObjectStatusParsed)
	if err != nil {
		return tracker.wrap(fmt.Errorf("publish object %d: %w", object.Id, err))
	}
	if !published {
		return tracker.wrap(fmt.Errorf("publish object %d: %w", object.Id, ErrObjectMoved))
	}
	object.Status = core.ObjectStatusParsed
	return nil
}

// abandon records cause on object so a later attempt can pick it up again.
// Objects that already left fetched belong to the coordinator and are not
// touched. It returns cause unchanged.
func (in *ingester) abandon(ctx context.Context, object *core.Object, cause error) error {
	if object == nil || object.Id == 0 {
		return cause
	}
	failed, err := in.objects.FailObject(ctx, object.Id, core.ObjectStatusFetched, cause.Error())
	if err != nil {
		in.logger.Error("error marking object failed", "objectId", object.Id, "err", err)
		return cause
	}
	if !failed {
		in.logger.Debug("object no longer fetched, leaving status", "objectId", object.Id)
	}
	return cause
}

// normalizeText collapses runs of whitespace inside lines and keeps
// paragraphs separated by one blank line.
func normalizeText(text string) string {
	var (
		b         strings.Builder
		paragraph []string
	)
	flush := func() {
		if len(paragraph) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(paragraph, " "))
		paragraph = paragraph[:0]
	}

	for line := range strings.Lines(text) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			flush()
			continue
		}
		paragraph = append(paragraph, strings.Join(fields, " "))
	}
	flush()
	return b.String()
}
