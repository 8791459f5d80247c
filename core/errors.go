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

import "errors"

// Domain validation errors
var (
	// ErrInvalidJob indicates a Job failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrUnknownJobType indicates a job type with no payload variant.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrEmptySource indicates the SourceIdentifier field is empty.
	ErrEmptySource = errors.New("source identifier cannot be empty")

	// ErrInvalidJobData indicates a job payload could not be decoded.
	ErrInvalidJobData = errors.New("invalid job data")

	// ErrJobDataMismatch indicates a payload variant that belongs to another job type.
	ErrJobDataMismatch = errors.New("job data does not match job type")

	// ErrInvalidProgress indicates a progress percent outside 0-100.
	ErrInvalidProgress = errors.New("progress percent must be between 0 and 100")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrNonContiguousChunks indicates chunk indices that do not run 0..N-1.
	ErrNonContiguousChunks = errors.New("chunk indices must be contiguous from 0")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)
