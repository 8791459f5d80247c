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


package core

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// MaxErrorInfoLength bounds error text persisted on jobs and objects.
const MaxErrorInfoLength = 1024

// JobType selects the worker that executes a job.
type JobType string

const (
	JobTypeURL JobType = "url"
	JobTypePDF JobType = "pdf"
)

// JobTypes lists every job type with a typed payload.
var JobTypes = []JobType{JobTypeURL, JobTypePDF}

// JobStatus is the state of an ingestion job.
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusProcessingSource JobStatus = "processing_source"
	JobStatusParsingContent   JobStatus = "parsing_content"
	JobStatusAIProcessing     JobStatus = "ai_processing"
	JobStatusPersistingData   JobStatus = "persisting_data"
	JobStatusVectorizing      JobStatus = "vectorizing"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
	JobStatusRetryPending     JobStatus = "retry_pending"
	JobStatusCancelled        JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions happen from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsWorking reports whether s is one of the stages a worker moves through
// while it holds the job.
func (s JobStatus) IsWorking() bool {
	switch s {
	case JobStatusProcessingSource, JobStatusParsingContent, JobStatusAIProcessing, JobStatusPersistingData:
		return true
	}
	return false
}

// ChunkingStatus tracks the handoff from ingestion to the chunking coordinator.
// The zero value means no chunking was requested.
type ChunkingStatus string

const (
	ChunkingStatusNone    ChunkingStatus = ""
	ChunkingStatusPending ChunkingStatus = "pending"
	ChunkingStatusDone    ChunkingStatus = "done"
	ChunkingStatusFailed  ChunkingStatus = "failed"
)

// Progress is the snapshot a worker reports as it moves through stages.
type Progress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Job is a queued unit of ingestion work for one source.
type Job struct {
	Id                string
	JobType           JobType
	SourceIdentifier  string
	OriginalFileName  string
	Status            JobStatus
	Priority          int
	Attempts          int
	LastAttemptAt     time.Time
	NextAttemptAt     time.Time
	Progress          Progress
	ErrorInfo         string
	FailedStage       string
	ChunkingStatus    ChunkingStatus
	ChunkingErrorInfo string
	Data              JobData `cbor:"-"` // Stored separately, keyed by JobType
	RelatedObjectId   ID
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       time.Time
}

// IsRunnable reports whether the job may be dispatched at now.
func (j *Job) IsRunnable(now time.Time) bool {
	switch j.Status {
	case JobStatusQueued:
		return true
	case JobStatusRetryPending:
		return !j.NextAttemptAt.After(now)
	}
	return false
}

// JobPatch lists the fields Update may change. Nil fields are left alone.
type JobPatch struct {
	Status            *JobStatus
	Progress          *Progress
	ErrorInfo         *string
	FailedStage       *string
	ChunkingStatus    *ChunkingStatus
	ChunkingErrorInfo *string
	RelatedObjectId   *ID
}

// Apply copies the set fields of p onto job and reports whether anything changed.
func (p JobPatch) Apply(job *Job) bool {
	changed := false
	if p.Status != nil && job.Status != *p.Status {
		job.Status = *p.Status
		changed = true
	}
	if p.Progress != nil && job.Progress != *p.Progress {
		job.Progress = *p.Progress
		changed = true
	}
	if p.ErrorInfo != nil && job.ErrorInfo != *p.ErrorInfo {
		job.ErrorInfo = TruncateErrorInfo(*p.ErrorInfo)
		changed = true
	}
	if p.FailedStage != nil && job.FailedStage != *p.FailedStage {
		job.FailedStage = *p.FailedStage
		changed = true
	}
	if p.ChunkingStatus != nil && job.ChunkingStatus != *p.ChunkingStatus {
		job.ChunkingStatus = *p.ChunkingStatus
		changed = true
	}
	if p.ChunkingErrorInfo != nil && job.ChunkingErrorInfo != *p.ChunkingErrorInfo {
		job.ChunkingErrorInfo = TruncateErrorInfo(*p.ChunkingErrorInfo)
		changed = true
	}
	if p.RelatedObjectId != nil && job.RelatedObjectId != *p.RelatedObjectId {
		job.RelatedObjectId = *p.RelatedObjectId
		changed = true
	}
	return changed
}

// JobData is the typed payload attached to a job at creation time.
// Each job type has exactly one payload variant.
type JobData interface {
	JobType() JobType
}

// URLJobData is the payload for url jobs.
type URLJobData struct {
	Title string   `json:"title,omitempty"` // Optional title hint from a bookmark export
	Tags  []string `json:"tags,omitempty"`
}

// JobType implements JobData.
func (URLJobData) JobType() JobType { return JobTypeURL }

// PDFJobData is the payload for pdf jobs.
type PDFJobData struct {
	FileSize int64 `json:"fileSize,omitempty"`
}

// JobType implements JobData.
func (PDFJobData) JobType() JobType { return JobTypePDF }

// NewJobData returns the zero payload for jobType.
func NewJobData(jobType JobType) (JobData, error) {
	switch jobType {
	case JobTypeURL:
		return &URLJobData{}, nil
	case JobTypePDF:
		return &PDFJobData{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
}

// DecodeJobData decodes a JSON payload for jobType into its typed variant.
// An empty payload yields the zero variant.
func DecodeJobData(jobType JobType, raw []byte) (JobData, error) {
	data, err := NewJobData(jobType)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJobData, err)
	}
	return data, nil
}

// TruncateErrorInfo shortens s to at most MaxErrorInfoLength bytes
// without splitting a UTF-8 sequence.
func TruncateErrorInfo(s string) string {
	if len(s) <= MaxErrorInfoLength {
		return s
	}
	cut := MaxErrorInfoLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
