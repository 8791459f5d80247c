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


package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/poiesic/gleanit/core"
)

var (
	// Nanosecond timestamps keep creation order stable for rows written
	// within the same second.
	encMode = mustEncMode(cbor.EncOptions{Time: cbor.TimeRFC3339Nano})
	decMode = mustDecMode(cbor.DecOptions{})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// jobEnvelope stores a job next to its payload, which is decoded
// into the variant selected by the job type.
type jobEnvelope struct {
	Job  core.Job
	Data cbor.RawMessage
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) ([]byte, error) {
	env := jobEnvelope{Job: *job}
	if job.Data != nil {
		data, err := encMode.Marshal(job.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: job %s data: %w", ErrSerializationFailed, job.Id, err)
		}
		env.Data = data
	}
	buf, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: job %s: %w", ErrSerializationFailed, job.Id, err)
	}
	return buf, nil
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	var env jobEnvelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	job := env.Job
	payload, err := core.NewJobData(job.JobType)
	if err != nil {
		return nil, fmt.Errorf("%w: job %s: %w", ErrSerializationFailed, job.Id, err)
	}
	if len(env.Data) > 0 {
		if err := decMode.Unmarshal(env.Data, payload); err != nil {
			return nil, fmt.Errorf("%w: job %s data: %w", ErrSerializationFailed, job.Id, err)
		}
	}
	job.Data = payload
	return &job, nil
}

// MarshalObject serializes an Object to bytes.
func MarshalObject(object *core.Object) ([]byte, error) {
	return marshal(object)
}

// UnmarshalObject deserializes an Object from bytes.
func UnmarshalObject(data []byte) (*core.Object, error) {
	var object core.Object
	if err := unmarshal(data, &object); err != nil {
		return nil, err
	}
	return &object, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) ([]byte, error) {
	return marshal(chunk)
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	var chunk core.Chunk
	if err := unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalVectorDocument serializes a VectorDocument to bytes.
func MarshalVectorDocument(doc *core.VectorDocument) ([]byte, error) {
	return marshal(doc)
}

// UnmarshalVectorDocument deserializes a VectorDocument from bytes.
func UnmarshalVectorDocument(data []byte) (*core.VectorDocument, error) {
	var doc core.VectorDocument
	if err := unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	// Encoding a uint64 cannot fail.
	buf, _ := encMode.Marshal(id)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	var id core.ID
	err := unmarshal(data, &id)
	return id, err
}

func marshal(v any) ([]byte, error) {
	buf, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return buf, nil
}

func unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	return marshal(checkpoint)
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	var checkpoint core.Checkpoint
	if err := unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}
