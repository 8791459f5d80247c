package gleanit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/gleanit/core"
	"github.com/poiesic/gleanit/storage"
	"github.com/poiesic/gleanit/worker"
)

// ErrNotAFile is returned when a pdf import names a directory.
var ErrNotAFile = errors.New("source is not a regular file")

// ImportRequest asks for one source to be ingested.
type ImportRequest struct {
	Type     core.JobType
	Source   string // URL, or path of a local PDF
	Priority int
	// Data is the JSON payload for Type. Empty selects the zero payload.
	Data json.RawMessage
	// OriginalFileName is the user facing name of an uploaded file.
	OriginalFileName string
}

// Import validates req and queues a job for it.
// A pdf source path is made absolute so the worker can find it from any
// working directory.
func (db *Database) Import(ctx context.Context, req ImportRequest) (*core.Job, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, core.ErrEmptySource
	}

	data, err := core.DecodeJobData(req.Type, req.Data)
	if err != nil {
		return nil, err
	}

	var opts []storage.CreateOption
	switch d := data.(type) {
	case *core.URLJobData:
		if source, err = worker.ParseSourceURL(source); err != nil {
			return nil, err
		}
	case *core.PDFJobData:
		if source, err = filepath.Abs(source); err != nil {
			return nil, err
		}
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", source, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("import %s: %w", source, ErrNotAFile)
		}
		if d.FileSize == 0 {
			d.FileSize = info.Size()
		}
		name := req.OriginalFileName
		if name == "" {
			name = filepath.Base(source)
		}
		opts = append(opts, storage.WithOriginalFileName(name))
	}

	job, err := db.dispatcher.Create(ctx, req.Type, source, req.Priority, data, opts...)
	if err != nil {
		return nil, err
	}
	db.logger.Info("job queued", "jobId", job.Id, "jobType", job.JobType, "source", source)
	return job, nil
}
