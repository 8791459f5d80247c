package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/storage"
)

// StatusError reports a non-2xx response. The dispatcher classifies it by
// its status code.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// StatusCode implements queue.StatusCoder.
func (e *StatusError) StatusCode() int {
	return e.Code
}

var _ queue.StatusCoder = (*StatusError)(nil)

// URLWorker ingests web pages.
type URLWorker struct {
	*ingester
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewURLWorker creates a worker for url jobs.
func NewURLWorker(jobs storage.JobRepository, objects storage.ObjectRepository, summarizer ai.Summarizer, opts ...Option) (*URLWorker, error) {
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	in, err := newIngester(jobs, objects, summarizer, o, core.JobTypeURL)
	if err != nil {
		return nil, err
	}
	return &URLWorker{
		ingester:     in,
		client:       o.httpClient,
		userAgent:    o.userAgent,
		maxBodyBytes: o.maxBodyBytes,
	}, nil
}

// Process fetches, parses and summarizes the page named by the job.
// It satisfies queue.Processor.
func (w *URLWorker) Process(ctx context.Context, job *core.Job) error {
	tracker := newStageTracker(w.jobs, job)

	data, ok := job.Data.(*core.URLJobData)
	if !ok && job.Data != nil {
		return tracker.wrap(queue.MarkPermanent(fmt.Errorf("%w: %T", core.ErrJobDataMismatch, job.Data)))
	}

	target, err := ParseSourceURL(job.SourceIdentifier)
	if err != nil {
		return tracker.wrap(err)
	}

	if err := tracker.report(ctx, 10, "Fetching "+target); err != nil {
		return err
	}
	body, err := w.fetch(ctx, target)
	if err != nil {
		return tracker.wrap(err)
	}

	hash := core.HashContent(body)
	dup, resume, err := w.lookup(ctx, job, hash)
	if err != nil {
		return tracker.wrap(err)
	}
	if dup != nil {
		return w.completeDuplicate(ctx, job, tracker, dup)
	}

	object, dup, err := w.saveObject(ctx, job, tracker, resume, core.Object{
		Kind:        core.JobTypeURL,
		Source:      target,
		ContentHash: hash,
	})
	if err != nil {
		return w.abandon(ctx, object, err)
	}
	if dup != nil {
		return w.completeDuplicate(ctx, job, tracker, dup)
	}

	if err := tracker.enter(ctx, core.JobStatusParsingContent, 30, "Parsing page"); err != nil {
		return w.abandon(ctx, object, err)
	}
	parsed, err := ParseHTML(bytes.NewReader(body))
	if err != nil {
		return w.abandon(ctx, object, tracker.wrap(queue.MarkPermanent(err)))
	}
	if parsed.Title == "" && data != nil {
		parsed.Title = data.Title
	}
	if parsed.Title == "" {
		parsed.Title = target
	}

	if err := w.finish(ctx, job, tracker, object, parsed); err != nil {
		return w.abandon(ctx, object, err)
	}
	return nil
}

// fetch downloads target and returns its body.
func (w *URLWorker) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, queue.MarkPermanent(fmt.Errorf("%w: %w", ErrInvalidURL, err))
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && !isTextMedia(mediaType) {
			return nil, queue.MarkPermanent(fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType))
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(body)) > w.maxBodyBytes {
		return nil, queue.MarkPermanent(fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, w.maxBodyBytes))
	}
	w.logger.Debug("fetched page", "url", target, "bytes", len(body))
	return body, nil
}

// ParseSourceURL checks that source is an absolute http(s) URL and returns it
// without its fragment.
func ParseSourceURL(source string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil {
		return "", queue.MarkPermanent(fmt.Errorf("%w: %w", ErrInvalidURL, err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", queue.MarkPermanent(fmt.Errorf("%w: %q", ErrInvalidURL, source))
	}
	u.Fragment = ""
	return u.String(), nil
}

func isTextMedia(mediaType string) bool {
	return mediaType == "text/html" ||
		mediaType == "application/xhtml+xml" ||
		mediaType == "text/plain"
}
