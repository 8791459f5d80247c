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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/poiesic/gleanit"
	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/chunking"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/queue"
	"github.com/poiesic/gleanit/reembed"
	"github.com/poiesic/gleanit/search"
	"github.com/poiesic/gleanit/worker"
	slogmulti "github.com/samber/slog-multi"
	"github.com/urfave/cli/v2"
)

const logCloserKey = "logCloser"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	defaults := ai.DefaultConfig()
	return &cli.App{
		Name:  "gleanit",
		Usage: "Ingest web pages and PDFs into a searchable knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "gleanit-data",
				EnvVars: []string{"GLEANIT_DB"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"GLEANIT_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this file",
				EnvVars: []string{"GLEANIT_LOG_FILE"},
			},
			&cli.StringFlag{
				Name:    "ai-backend",
				Usage:   "AI backend (openai, ollama)",
				Value:   string(defaults.Backend),
				EnvVars: []string{"GLEANIT_AI_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL",
				Value:   defaults.EmbeddingHost,
				EnvVars: []string{"GLEANIT_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "chat-host",
				Usage:   "Chat service host URL used for chunking and summaries",
				Value:   defaults.ChatHost,
				EnvVars: []string{"GLEANIT_CHAT_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				Value:   defaults.EmbeddingModel,
				EnvVars: []string{"GLEANIT_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "chat-model",
				Usage:   "Chat model name",
				Value:   defaults.ChatModel,
				EnvVars: []string{"GLEANIT_CHAT_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-token",
				Usage:   "Bearer token for OpenAI-compatible servers",
				EnvVars: []string{"GLEANIT_API_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "storage-dir",
				Usage:   "Directory PDF sources are copied to (default <db>/files)",
				EnvVars: []string{"GLEANIT_STORAGE_DIR"},
			},
			&cli.StringFlag{
				Name:    "pdftotext",
				Usage:   "Path of the pdftotext executable",
				Value:   worker.DefaultExtractorCommand,
				EnvVars: []string{"GLEANIT_PDFTOTEXT"},
			},
		},
		Before: setup,
		After:  closeLog,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Process queued jobs and chunk new content until interrupted",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of jobs processed at once (default half the CPUs)",
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Usage: "How often the queue is polled for runnable jobs",
						Value: queue.DefaultPollInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retries allowed for transient failures",
						Value: queue.DefaultRetryPolicy().MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "purge-after",
						Usage: "Delete finished jobs older than this (0 keeps them)",
					},
					&cli.DurationFlag{
						Name:  "chunk-interval",
						Usage: "How often the chunking coordinator looks for new content",
						Value: chunking.DefaultInterval,
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Queue URLs or PDF files for ingestion",
				ArgsUsage: "<source>...",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Source type (url, pdf)",
						Value:   string(core.JobTypeURL),
					},
					&cli.IntFlag{
						Name:    "priority",
						Aliases: []string{"p"},
						Usage:   "Higher priorities run first",
					},
					&cli.StringFlag{
						Name:  "data",
						Usage: `JSON job data, e.g. '{"title":"...","tags":["..."]}'`,
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "Inspect and manage ingestion jobs",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List jobs",
						Action: listJobsCommand,
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:    "status",
								Aliases: []string{"s"},
								Usage:   "Only show jobs in these statuses",
							},
						},
					},
					{
						Name:      "cancel",
						Usage:     "Cancel jobs that have not started",
						ArgsUsage: "<job-id>...",
						Action:    cancelJobsCommand,
					},
					{
						Name:   "purge",
						Usage:  "Delete finished jobs",
						Action: purgeJobsCommand,
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:  "older-than",
								Usage: "Only delete jobs finished longer ago than this",
								Value: 7 * 24 * time.Hour,
							},
						},
					},
				},
			},
			{
				Name:   "reset-embeddings",
				Usage:  "Queue content whose chunking failed for another attempt",
				Action: resetEmbeddingsCommand,
			},
			{
				Name:      "search",
				Usage:     "Search ingested content",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   search.DefaultLimit,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Drop results scoring below this",
						Value: float64(search.DefaultMinSimilarity),
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild the vectors of all embedded content",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of objects to process in each batch",
						Value: reembed.DefaultConfig().BatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N objects",
						Value: reembed.DefaultConfig().ReportInterval,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: reembed.DefaultConfig().MaxRetries,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: reembed.DefaultConfig().RetryDelay,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore any saved checkpoint and start over",
					},
				},
			},
		},
	}
}

// setup loads .env and configures logging before any command runs.
func setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return setupLogger(c)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

// setupLogger logs text to stderr and, with --log-file, JSON to the file.
func setupLogger(c *cli.Context) error {
	level, err := parseLevel(c.String("log-level"))
	if err != nil {
		return err
	}

	stderrHandler := slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})
	logFile := c.String("log-file")
	if logFile == "" {
		slog.SetDefault(slog.New(stderrHandler))
		return nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(slogmulti.Fanout(stderrHandler, fileHandler)))

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[logCloserKey] = file
	return nil
}

func closeLog(c *cli.Context) error {
	if closer, ok := c.App.Metadata[logCloserKey].(io.Closer); ok {
		delete(c.App.Metadata, logCloserKey)
		return closer.Close()
	}
	return nil
}

func aiConfig(c *cli.Context) *ai.Config {
	return ai.NewConfig(
		ai.WithBackend(ai.Backend(c.String("ai-backend"))),
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithChatHost(c.String("chat-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatModel(c.String("chat-model")),
		ai.WithAPIToken(c.String("api-token")),
	)
}

func openDatabase(c *cli.Context, opts ...gleanit.DatabaseOption) (*gleanit.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	base := []gleanit.DatabaseOption{
		gleanit.WithAIConfig(aiConfig(c)),
		gleanit.WithLogger(slog.Default()),
		gleanit.WithTextExtractor(&worker.CommandExtractor{Path: c.String("pdftotext")}),
	}
	if dir := c.String("storage-dir"); dir != "" {
		base = append(base, gleanit.WithStorageDir(dir))
	}

	db, err := gleanit.NewDatabase(dbPath, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func serveCommand(c *cli.Context) error {
	if c.Int("concurrency") < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	queueOpts := []queue.Option{
		queue.WithPollInterval(c.Duration("poll-interval")),
		queue.WithMaxRetries(c.Int("max-retries")),
		queue.WithPurgeAfter(c.Duration("purge-after")),
	}
	if n := c.Int("concurrency"); n > 0 {
		queueOpts = append(queueOpts, queue.WithConcurrency(n))
	}

	db, err := openDatabase(c,
		gleanit.WithQueueOptions(queueOpts...),
		gleanit.WithCoordinatorOptions(chunking.WithInterval(c.Duration("chunk-interval"))),
	)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("serving", "db", c.String("db"), "concurrency", c.Int("concurrency"))
	return db.Run(ctx)
}

func importCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one source is required")
	}
	jobType := core.JobType(strings.ToLower(c.String("type")))

	var data json.RawMessage
	if raw := c.String("data"); raw != "" {
		data = json.RawMessage(raw)
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var errs []error
	for _, source := range c.Args().Slice() {
		job, err := db.Import(c.Context, gleanit.ImportRequest{
			Type:     jobType,
			Source:   source,
			Priority: c.Int("priority"),
			Data:     data,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", source, err))
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", job.Id, job.SourceIdentifier)
	}
	return errors.Join(errs...)
}

func parseStatuses(values []string) ([]core.JobStatus, error) {
	known := map[core.JobStatus]bool{
		core.JobStatusQueued: true, core.JobStatusProcessingSource: true, core.JobStatusParsingContent: true,
		core.JobStatusAIProcessing: true, core.JobStatusPersistingData: true, core.JobStatusVectorizing: true,
		core.JobStatusCompleted: true, core.JobStatusFailed: true, core.JobStatusRetryPending: true,
		core.JobStatusCancelled: true,
	}
	var statuses []core.JobStatus
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			status := core.JobStatus(strings.TrimSpace(strings.ToLower(part)))
			if status == "" {
				continue
			}
			if !known[status] {
				return nil, fmt.Errorf("unknown job status %q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func statusColor(status core.JobStatus) *color.Color {
	switch status {
	case core.JobStatusCompleted:
		return color.New(color.FgGreen)
	case core.JobStatusFailed:
		return color.New(color.FgRed, color.Bold)
	case core.JobStatusCancelled:
		return color.New(color.Faint)
	case core.JobStatusRetryPending:
		return color.New(color.FgYellow)
	case core.JobStatusQueued:
		return color.New(color.FgCyan)
	}
	return color.New(color.FgBlue)
}

func listJobsCommand(c *cli.Context) error {
	statuses, err := parseStatuses(c.StringSlice("status"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := db.Jobs().ListJobs(c.Context, statuses...)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	printJobs(c.App.Writer, jobs)
	return nil
}

func printJobs(w io.Writer, jobs []*core.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tATTEMPTS\tCHUNKING\tSOURCE\tERROR")
	for _, job := range jobs {
		chunkingStatus := string(job.ChunkingStatus)
		if chunkingStatus == "" {
			chunkingStatus = "-"
		}
		errorInfo := job.ErrorInfo
		if errorInfo == "" {
			errorInfo = job.ChunkingErrorInfo
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			job.Id,
			job.JobType,
			statusColor(job.Status).Sprint(job.Status),
			job.Attempts,
			chunkingStatus,
			job.SourceIdentifier,
			firstLine(errorInfo),
		)
	}
	tw.Flush()
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return s
}

func cancelJobsCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one job id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var errs []error
	for _, id := range c.Args().Slice() {
		if err := db.CancelJob(c.Context, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(c.App.Writer, "cancelled %s\n", id)
	}
	return errors.Join(errs...)
}

func purgeJobsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Jobs().PurgeFinished(c.Context, time.Now().Add(-c.Duration("older-than")))
	if err != nil {
		return fmt.Errorf("failed to purge jobs: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "purged %d jobs\n", removed)
	return nil
}

func resetEmbeddingsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reset, err := db.ResetEmbeddings(c.Context)
	if err != nil {
		return fmt.Errorf("failed to reset embeddings: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "reset %d objects\n", reset)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a query is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(search.WithMinSimilarity(float32(c.Float64("min-similarity"))))
	if err != nil {
		return err
	}
	results, err := searcher.Search(c.Context, query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(c.App.Writer, results)
	return nil
}

func printResults(w io.Writer, results []*search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	heading := color.New(color.FgGreen, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	for i, result := range results {
		title, source := "(deleted)", ""
		if result.Object != nil {
			title, source = result.Object.Title, result.Object.Source
		}
		fmt.Fprintf(w, "%d. %s %s\n", i+1, heading(title), faint(fmt.Sprintf("[%.3f]", result.Score)))
		if source != "" {
			fmt.Fprintf(w, "   %s\n", faint(source))
		}
		fmt.Fprintf(w, "   %s\n\n", result.Document.Content)
	}
}

func reembedCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Restart:        c.Bool("restart"),
	}

	// Validate config
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", c.String("embedding-host"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", c.String("embedding-model"))
	fmt.Fprintln(c.App.ErrWriter)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.NewReembedder(config, c.App.ErrWriter).Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
