package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI against a fresh app and returns its stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"gleanit"}, args...))
	return out.String(), err
}

func findStringFlag(flags []cli.Flag, name string) *cli.StringFlag {
	for _, flag := range flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
			return f
		}
	}
	return nil
}

func findCommand(commands []*cli.Command, name string) *cli.Command {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	t.Run("every global string flag reads the environment", func(t *testing.T) {
		for _, flag := range app.Flags {
			f, ok := flag.(*cli.StringFlag)
			if !ok {
				continue
			}
			require.Len(t, f.EnvVars, 1, f.Name)
			assert.True(t, strings.HasPrefix(f.EnvVars[0], "GLEANIT_"), f.Name)
		}
	})

	t.Run("embedding-host has default value", func(t *testing.T) {
		f := findStringFlag(app.Flags, "embedding-host")
		require.NotNil(t, f)
		assert.Equal(t, "http://localhost:11434/v1", f.Value)
	})

	t.Run("pdftotext has default value", func(t *testing.T) {
		f := findStringFlag(app.Flags, "pdftotext")
		require.NotNil(t, f)
		assert.Equal(t, worker.DefaultExtractorCommand, f.Value)
	})

	t.Run("api-token has no default value", func(t *testing.T) {
		f := findStringFlag(app.Flags, "api-token")
		require.NotNil(t, f)
		assert.Empty(t, f.Value)
	})

	t.Run("jobs has list cancel and purge", func(t *testing.T) {
		jobs := findCommand(app.Commands, "jobs")
		require.NotNil(t, jobs)
		for _, name := range []string{"list", "cancel", "purge"} {
			assert.NotNil(t, findCommand(jobs.Subcommands, name), name)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		level, err := parseLevel(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, level)
	}

	_, err := parseLevel("verbose")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"queued,failed", " Retry_Pending "})
	require.NoError(t, err)
	assert.Equal(t, []core.JobStatus{core.JobStatusQueued, core.JobStatusFailed, core.JobStatusRetryPending}, statuses)

	statuses, err = parseStatuses(nil)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	_, err = parseStatuses([]string{"done"})
	assert.ErrorContains(t, err, `unknown job status "done"`)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "loud", "--db", t.TempDir(), "jobs", "list")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestCommandValidation(t *testing.T) {
	db := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"import without source", []string{"import"}, "at least one source"},
		{"cancel without id", []string{"jobs", "cancel"}, "at least one job id"},
		{"search without query", []string{"search", "  "}, "a query is required"},
		{"reembed batch size", []string{"reembed", "--batch-size", "0"}, "batch-size must be greater than 0"},
		{"reembed report interval", []string{"reembed", "--report-interval", "0"}, "report-interval must be greater than 0"},
		{"serve max retries", []string{"serve", "--max-retries", "0"}, "max-retries must be greater than 0"},
		{"unknown status", []string{"jobs", "list", "--status", "stuck"}, "unknown job status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, append([]string{"--db", db}, tt.args...)...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestImportListCancelPurge(t *testing.T) {
	db := t.TempDir()

	out, err := runApp(t, "--db", db, "import", "--priority", "3", "https://example.com/post#top")
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	jobID := fields[0]
	assert.Equal(t, "https://example.com/post", fields[1])

	out, err = runApp(t, "--db", db, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "queued")

	out, err = runApp(t, "--db", db, "jobs", "list", "--status", "failed")
	require.NoError(t, err)
	assert.NotContains(t, out, jobID)

	out, err = runApp(t, "--db", db, "jobs", "cancel", jobID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled "+jobID+"\n", out)

	_, err = runApp(t, "--db", db, "jobs", "cancel", jobID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	out, err = runApp(t, "--db", db, "jobs", "purge", "--older-than", "0s")
	require.NoError(t, err)
	assert.Equal(t, "purged 1 jobs\n", out)

	out, err = runApp(t, "--db", db, "jobs", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, jobID)
}

func TestImportReportsEachFailure(t *testing.T) {
	db := t.TempDir()

	out, err := runApp(t, "--db", db, "import", "https://example.com/ok", "not a url", "ftp://example.com/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a url")
	assert.Contains(t, err.Error(), "ftp://example.com/x")
	assert.ErrorIs(t, err, worker.ErrInvalidURL)
	assert.Contains(t, out, "https://example.com/ok")
}

func TestImportPDF(t *testing.T) {
	db := t.TempDir()
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	out, err := runApp(t, "--db", db, "import", "--type", "PDF", "--data", `{"fileSize":8}`, path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
}

func TestLogFile(t *testing.T) {
	db := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "gleanit.log")

	_, err := runApp(t, "--db", db, "--log-file", logFile, "import", "https://example.com/logged")
	require.NoError(t, err)

	contents, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(contents), `"msg":"job queued"`)
	assert.Contains(t, string(contents), "https://example.com/logged")
}
