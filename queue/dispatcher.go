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

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
)

// DefaultPollInterval is how often a running dispatcher looks for runnable jobs.
const DefaultPollInterval = time.Second

// Processor executes one job. It walks the job through its stages and marks
// it completed (or hands it to chunking) itself. A returned error is
// classified by the dispatcher to decide between retry and failure.
type Processor func(ctx context.Context, job *core.Job) error

// Dispatcher polls the job store and runs runnable jobs on a bounded
// worker pool.
type Dispatcher struct {
	jobs         storage.JobRepository
	pool         *ants.Pool
	concurrency  int
	pollInterval time.Duration
	retry        RetryPolicy
	classifier   Classifier
	observers    []Observer
	purgeAfter   time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	processors map[core.JobType]Processor
	active     map[string]struct{}
	stop       context.CancelFunc
	loopDone   chan struct{}
	inflight   sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithConcurrency sets how many jobs run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithConcurrency(size int) Option {
	return func(d *Dispatcher) error {
		if size < 1 {
			return ErrInvalidConcurrency
		}

		// Release old pool
		if d.pool != nil {
			d.pool.Release()
			d.pool = nil
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		d.pool = pool
		d.concurrency = size
		return nil
	}
}

// WithPollInterval sets how often Start's loop calls Tick.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		d.pollInterval = interval
		return nil
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(d *Dispatcher) error {
		d.retry = policy
		return nil
	}
}

// WithMaxRetries sets the retry ceiling of the current policy.
func WithMaxRetries(maxRetries int) Option {
	return func(d *Dispatcher) error {
		if maxRetries < 1 {
			maxRetries = 1
		}
		d.retry.MaxRetries = maxRetries
		return nil
	}
}

// WithClassifier replaces the error classifier.
func WithClassifier(classifier Classifier) Option {
	return func(d *Dispatcher) error {
		if classifier == nil {
			classifier = DefaultClassifier
		}
		d.classifier = classifier
		return nil
	}
}

// WithObserver adds an observer for lifecycle events.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) error {
		if observer != nil {
			d.observers = append(d.observers, observer)
		}
		return nil
	}
}

// WithPurgeAfter makes Start delete terminal jobs older than retention.
// Zero disables the purge.
func WithPurgeAfter(retention time.Duration) Option {
	return func(d *Dispatcher) error {
		d.purgeAfter = retention
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher over jobs.
func NewDispatcher(jobs storage.JobRepository, opts ...Option) (*Dispatcher, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		jobs:         jobs,
		pool:         pool,
		concurrency:  poolSize,
		pollInterval: DefaultPollInterval,
		retry:        DefaultRetryPolicy(),
		classifier:   DefaultClassifier,
		logger:       slog.Default(),
		processors:   make(map[core.JobType]Processor),
		active:       make(map[string]struct{}),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(d); optErr != nil {
			d.Release()
			return nil, optErr
		}
	}
	d.logger = d.logger.With("component", "dispatcher")

	return d, nil
}

// RegisterProcessor sets the processor for jobType. Registering again
// replaces the previous processor.
func (d *Dispatcher) RegisterProcessor(jobType core.JobType, processor Processor) error {
	if processor == nil {
		return ErrProcessorRequired
	}
	if err := core.ValidateJobType(jobType); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.processors[jobType]; ok {
		d.logger.Warn("replacing processor", "jobType", jobType)
	}
	d.processors[jobType] = processor
	return nil
}

// Create enqueues a new job and announces it to observers.
func (d *Dispatcher) Create(ctx context.Context, jobType core.JobType, sourceIdentifier string, priority int, data core.JobData, opts ...storage.CreateOption) (*core.Job, error) {
	job, err := d.jobs.Create(ctx, jobType, sourceIdentifier, priority, data, opts...)
	if err != nil {
		return nil, err
	}
	d.logger.Info("job created", "jobId", job.Id, "jobType", job.JobType, "source", job.SourceIdentifier)
	d.emit(EventJobCreated, job, nil, 0)
	return job, nil
}

// Tick fetches as many runnable jobs as there are free slots and submits
// them to the pool. It returns the number of jobs submitted.
// Jobs keep running after ctx is cancelled.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	d.mu.Lock()
	free := d.concurrency - len(d.active)
	busy := len(d.active)
	jobTypes := make([]core.JobType, 0, len(d.processors))
	for jobType := range d.processors {
		jobTypes = append(jobTypes, jobType)
	}
	d.mu.Unlock()

	if free <= 0 || len(jobTypes) == 0 {
		return 0, nil
	}

	// Jobs submitted but not yet started are still runnable, so ask for
	// enough to cover them being skipped.
	jobs, err := d.jobs.GetNextJobs(ctx, free+busy, jobTypes...)
	if err != nil {
		return 0, fmt.Errorf("fetch runnable jobs: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	submitted := 0
	for _, job := range jobs {
		if !d.acquire(job.Id) {
			continue
		}

		d.inflight.Add(1)
		err := d.pool.Submit(func() {
			defer d.inflight.Done()
			defer d.release(job.Id)
			d.run(runCtx, job)
		})
		if err != nil {
			d.inflight.Done()
			d.release(job.Id)
			return submitted, fmt.Errorf("submit job %s: %w", job.Id, err)
		}
		submitted++
	}

	if submitted > 0 {
		d.logger.Debug("dispatched jobs", "count", submitted)
	}
	return submitted, nil
}

// Start recovers jobs interrupted by a previous process, purges expired
// jobs when configured, and begins polling in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.stop = cancel
	d.loopDone = make(chan struct{})
	d.mu.Unlock()

	requeued, err := d.jobs.RequeueInterrupted(ctx)
	if err != nil {
		d.logger.Error("error requeueing interrupted jobs", "err", err)
	} else if requeued > 0 {
		d.logger.Info("requeued interrupted jobs", "count", requeued)
	}

	if d.purgeAfter > 0 {
		purged, err := d.jobs.PurgeFinished(ctx, time.Now().UTC().Add(-d.purgeAfter))
		if err != nil {
			d.logger.Error("error purging finished jobs", "err", err)
		} else if purged > 0 {
			d.logger.Info("purged finished jobs", "count", purged)
		}
	}

	go d.loop(loopCtx, d.loopDone)
	d.logger.Info("dispatcher started", "concurrency", d.concurrency, "pollInterval", d.pollInterval)
	return nil
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("error dispatching jobs", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts polling. Jobs already running are left to finish; use Wait
// to block until they do.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.stop, d.loopDone
	d.stop = nil
	d.loopDone = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.logger.Info("dispatcher stopped")
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// ActiveJobs returns the number of jobs currently held by the dispatcher.
func (d *Dispatcher) ActiveJobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Release stops polling and releases the worker pool.
// The dispatcher should not be used after calling Release.
func (d *Dispatcher) Release() {
	d.Stop()
	if d.pool != nil {
		d.pool.Release()
	}
}

func (d *Dispatcher) acquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[id]; ok {
		return false
	}
	if len(d.active) >= d.concurrency {
		return false
	}
	d.active[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.active, id)
	d.mu.Unlock()
}

func (d *Dispatcher) processor(jobType core.JobType) Processor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processors[jobType]
}

// run executes one attempt of job.
func (d *Dispatcher) run(ctx context.Context, job *core.Job) {
	logger := d.logger.With("jobId", job.Id, "jobType", job.JobType)

	started, err := d.jobs.MarkAsStarted(ctx, job.Id)
	if err != nil {
		if errors.Is(err, core.ErrInvalidTransition) {
			logger.Debug("job no longer runnable", "err", err)
			return
		}
		logger.Error("error starting job", "err", err)
		return
	}
	logger.Info("job started", "attempt", started.Attempts)
	d.emit(EventJobStarted, started, nil, 0)

	processor := d.processor(started.JobType)
	if processor == nil {
		err = MarkPermanent(fmt.Errorf("no processor registered for job type %q", started.JobType))
	} else {
		err = invoke(ctx, processor, started)
	}

	if err == nil {
		logger.Info("job finished")
		d.emit(EventJobCompleted, started, nil, 0)
		return
	}
	d.handleFailure(ctx, logger, started, err)
}

// handleFailure records a failed attempt as a retry or a terminal failure.
func (d *Dispatcher) handleFailure(ctx context.Context, logger *slog.Logger, job *core.Job, procErr error) {
	stage := string(job.Status)
	if current, err := d.jobs.GetJob(ctx, job.Id); err == nil {
		if current.Status.IsTerminal() {
			logger.Warn("processor failed after job finished", "status", current.Status, "err", procErr)
			return
		}
		stage = string(current.Status)
	}

	kind := d.classifier.Classify(procErr)
	if d.retry.ShouldRetry(kind, job.Attempts) {
		delay := d.retry.Delay(job.Attempts)
		if err := d.jobs.MarkAsRetryable(ctx, job.Id, procErr.Error(), stage, delay); err != nil {
			logger.Error("error scheduling retry", "err", err)
			return
		}
		logger.Warn("job attempt failed, retry scheduled",
			"attempt", job.Attempts, "stage", stage, "delay", delay, "err", procErr)
		d.emit(EventJobRetry, job, procErr, delay)
		return
	}

	if err := d.jobs.MarkAsFailed(ctx, job.Id, procErr.Error(), stage); err != nil {
		logger.Error("error failing job", "err", err)
		return
	}
	logger.Error("job failed", "attempt", job.Attempts, "stage", stage, "kind", kind, "err", procErr)
	d.emit(EventJobFailed, job, procErr, 0)
}

// invoke runs processor and turns a panic into an error.
func invoke(ctx context.Context, processor Processor, job *core.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return processor(ctx, job)
}

func (d *Dispatcher) emit(eventType EventType, job *core.Job, err error, delay time.Duration) {
	if len(d.observers) == 0 {
		return
	}
	event := Event{
		Type:     eventType,
		JobID:    job.Id,
		JobType:  job.JobType,
		Attempts: job.Attempts,
		Err:      err,
		Delay:    delay,
		At:       time.Now().UTC(),
	}
	for _, observer := range d.observers {
		observer.OnEvent(event)
	}
}
