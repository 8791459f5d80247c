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

// Package gleanit ingests web pages and PDFs into a searchable knowledge base.
//
// A Database wires the Badger stores, the AI provider, the job dispatcher
// with its workers and the chunking coordinator together.
package gleanit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/chunker"
	"github.com/poiesic/gleanit/chunking"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/reembed"
	"github.com/poiesic/gleanit/search"
	"github.com/poiesic/gleanit/storage"
	"github.com/poiesic/gleanit/storage/badger"
	"github.com/poiesic/gleanit/worker"
)

// Database is an open gleanit knowledge base.
type Database struct {
	repos      *badger.Repositories
	provider   ai.AIProvider
	dispatcher *queue.Dispatcher
	options    *databaseOptions
	logger     *slog.Logger

	mu          sync.Mutex
	coordinator *chunking.Coordinator
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig           *ai.Config
	provider           ai.AIProvider
	inMemory           bool
	storageDir         string
	extractor          worker.TextExtractor
	chunkerConfig      chunker.Config
	chunkerOptions     []chunker.Option
	queueOptions       []queue.Option
	workerOptions      []worker.Option
	coordinatorOptions []chunking.Option
	logger             *slog.Logger
}

// WithAIConfig selects the AI backend, hosts and models.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses an existing AI provider instead of building one from the
// AI config. The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// InMemory keeps every store in memory. The path argument is ignored.
func InMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithStorageDir sets where PDF sources are copied.
// Default is a "files" directory inside the database directory.
func WithStorageDir(dir string) DatabaseOption {
	return func(o *databaseOptions) {
		o.storageDir = dir
	}
}

// WithTextExtractor sets the PDF text extractor.
// Default runs pdftotext.
func WithTextExtractor(extractor worker.TextExtractor) DatabaseOption {
	return func(o *databaseOptions) {
		o.extractor = extractor
	}
}

// WithChunkerConfig tunes the chunking agent.
func WithChunkerConfig(config chunker.Config, opts ...chunker.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.chunkerConfig = config
		o.chunkerOptions = append(o.chunkerOptions, opts...)
	}
}

// WithQueueOptions passes options to the dispatcher.
func WithQueueOptions(opts ...queue.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.queueOptions = append(o.queueOptions, opts...)
	}
}

// WithWorkerOptions passes options to both workers.
func WithWorkerOptions(opts ...worker.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.workerOptions = append(o.workerOptions, opts...)
	}
}

// WithCoordinatorOptions passes options to the chunking coordinator.
func WithCoordinatorOptions(opts ...chunking.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.coordinatorOptions = append(o.coordinatorOptions, opts...)
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens or creates the database at path.
func NewDatabase(path string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:      ai.DefaultConfig(),
		extractor:     &worker.CommandExtractor{},
		chunkerConfig: chunker.DefaultConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.storageDir == "" && !options.inMemory {
		options.storageDir = filepath.Join(path, "files")
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	repos, err := badger.OpenRepositories(path, options.inMemory, provider.Embedder())
	if err != nil {
		provider.Close()
		return nil, err
	}

	db := &Database{
		repos:    repos,
		provider: provider,
		options:  options,
		logger:   options.logger,
	}

	db.dispatcher, err = db.newDispatcher()
	if err != nil {
		db.closeStores()
		return nil, err
	}
	return db, nil
}

// newDispatcher builds the dispatcher and registers a worker per job type.
// PDF jobs are only registered when a storage directory is known.
func (db *Database) newDispatcher() (*queue.Dispatcher, error) {
	opts := append([]queue.Option{queue.WithLogger(db.logger)}, db.options.queueOptions...)
	dispatcher, err := queue.NewDispatcher(db.repos.Jobs, opts...)
	if err != nil {
		return nil, err
	}

	workerOpts := append([]worker.Option{worker.WithLogger(db.logger)}, db.options.workerOptions...)
	urls, err := worker.NewURLWorker(db.repos.Jobs, db.repos.Objects, db.provider.Summarizer(), workerOpts...)
	if err != nil {
		dispatcher.Release()
		return nil, err
	}
	if err := dispatcher.RegisterProcessor(core.JobTypeURL, urls.Process); err != nil {
		dispatcher.Release()
		return nil, err
	}

	if db.options.storageDir == "" {
		db.logger.Warn("no storage directory configured, pdf jobs will not be processed")
		return dispatcher, nil
	}
	pdfs, err := worker.NewPDFWorker(db.repos.Jobs, db.repos.Objects, db.provider.Summarizer(),
		db.options.extractor, db.options.storageDir, workerOpts...)
	if err != nil {
		dispatcher.Release()
		return nil, err
	}
	if err := dispatcher.RegisterProcessor(core.JobTypePDF, pdfs.Process); err != nil {
		dispatcher.Release()
		return nil, err
	}
	return dispatcher, nil
}

// Dispatcher returns the job dispatcher.
func (db *Database) Dispatcher() *queue.Dispatcher {
	return db.dispatcher
}

// Coordinator returns the chunking coordinator, creating it on first use.
// Creation loads the token encoding for the chunking agent.
func (db *Database) Coordinator() (*chunking.Coordinator, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.coordinator != nil {
		return db.coordinator, nil
	}

	chunkerOpts := append([]chunker.Option{chunker.WithLogger(db.logger)}, db.options.chunkerOptions...)
	agent, err := chunker.New(db.provider.ChatModel(), db.options.chunkerConfig, chunkerOpts...)
	if err != nil {
		return nil, err
	}

	opts := append([]chunking.Option{chunking.WithLogger(db.logger)}, db.options.coordinatorOptions...)
	coordinator, err := chunking.NewCoordinator(db.repos.Jobs, db.repos.Objects, db.repos.Chunks, db.repos.Vectors, agent, opts...)
	if err != nil {
		return nil, err
	}
	db.coordinator = coordinator
	return coordinator, nil
}

// Run processes jobs and chunks objects until ctx is cancelled, then stops
// both loops and waits for running jobs to finish.
func (db *Database) Run(ctx context.Context) error {
	coordinator, err := db.Coordinator()
	if err != nil {
		return err
	}

	if err := db.dispatcher.Start(ctx); err != nil {
		return err
	}
	if err := coordinator.Start(ctx); err != nil {
		db.dispatcher.Stop()
		return err
	}

	<-ctx.Done()
	db.logger.Info("shutting down")
	db.dispatcher.Stop()
	coordinator.Stop()
	db.dispatcher.Wait()
	return coordinator.Wait(context.Background())
}

// Jobs returns the job store.
func (db *Database) Jobs() storage.JobRepository {
	return db.repos.Jobs
}

// Objects returns the object store.
func (db *Database) Objects() storage.ObjectRepository {
	return db.repos.Objects
}

// Chunks returns the chunk store.
func (db *Database) Chunks() storage.ChunkRepository {
	return db.repos.Chunks
}

// Vectors returns the vector store.
func (db *Database) Vectors() storage.VectorStore {
	return db.repos.Vectors
}

// CancelJob cancels a job that has not started yet.
func (db *Database) CancelJob(ctx context.Context, id string) error {
	return db.repos.Jobs.MarkAsCancelled(ctx, id)
}

// ResetEmbeddings moves objects whose chunking failed back into the queue
// and returns how many were reset.
func (db *Database) ResetEmbeddings(ctx context.Context) (int, error) {
	coordinator, err := db.Coordinator()
	if err != nil {
		return 0, err
	}
	return coordinator.ResetFailed(ctx)
}

// NewSearcher creates a searcher over the embedded chunks.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	opts = append([]search.Option{search.WithLogger(db.logger)}, opts...)
	return search.NewSearcher(db.repos.Vectors, db.repos.Objects, db.provider.Embedder(), opts...)
}

// Search returns up to limit chunks relevant to query.
func (db *Database) Search(ctx context.Context, query string, limit int) ([]*search.Result, error) {
	searcher, err := db.NewSearcher()
	if err != nil {
		return nil, err
	}
	return searcher.Search(ctx, query, limit)
}

// NewReembedder creates a reembedder that writes progress to progress.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) *reembed.Reembedder {
	return reembed.NewReembedder(db.repos.Objects, db.repos.Chunks, db.repos.Vectors, db.repos.Checkpoints,
		db.provider.Embedder(), config, progress)
}

// Close stops background work and closes the provider and stores.
func (db *Database) Close() error {
	db.mu.Lock()
	coordinator := db.coordinator
	db.mu.Unlock()
	if coordinator != nil {
		coordinator.Stop()
		if err := coordinator.Wait(context.Background()); err != nil {
			db.logger.Warn("error waiting for chunking", "err", err)
		}
	}
	db.dispatcher.Stop()
	db.dispatcher.Wait()
	db.dispatcher.Release()
	return db.closeStores()
}

func (db *Database) closeStores() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := db.repos.Close(); err != nil {
		db.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close database: %w", errors.Join(errs...))
	}
	return nil
}
