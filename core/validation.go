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
	"fmt"
	"slices"
	"strings"
)

// ValidateJob validates a new Job according to domain rules.
//
// Validation rules:
//   - JobType must have a payload variant
//   - SourceIdentifier must not be blank
//   - Data, when set, must be the variant for JobType
//
// NOT validated (populated by the store):
//   - Id, timestamps, attempts
func ValidateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if err := ValidateJobType(job.JobType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	if strings.TrimSpace(job.SourceIdentifier) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptySource)
	}

	if job.Data != nil && job.Data.JobType() != job.JobType {
		return fmt.Errorf("%w: %w: %s payload on %s job", ErrInvalidJob, ErrJobDataMismatch,
			job.Data.JobType(), job.JobType)
	}

	return nil
}

// ValidateJobType validates that a JobType is known.
func ValidateJobType(jobType JobType) error {
	if !slices.Contains(JobTypes, jobType) {
		return fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	return nil
}

// ValidateProgress checks the percent range of a progress snapshot.
func ValidateProgress(p Progress) error {
	if p.Percent < 0 || p.Percent > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidProgress, p.Percent)
	}
	return nil
}

// ValidateChunks validates a chunk set for one object.
//
// Validation rules:
//   - every chunk belongs to objectID
//   - Content must not be empty
//   - ChunkIdx runs 0..N-1 in slice order
func ValidateChunks(objectID ID, chunks []Chunk) error {
	for i, chunk := range chunks {
		if chunk.ObjectId != objectID {
			return fmt.Errorf("%w: chunk %d belongs to object %d, want %d",
				ErrInvalidChunk, i, chunk.ObjectId, objectID)
		}
		if strings.TrimSpace(chunk.Content) == "" {
			return fmt.Errorf("%w: chunk %d: %w", ErrInvalidChunk, i, ErrEmptyContent)
		}
		if chunk.ChunkIdx != i {
			return fmt.Errorf("%w: %w: position %d has index %d",
				ErrInvalidChunk, ErrNonContiguousChunks, i, chunk.ChunkIdx)
		}
	}
	return nil
}
