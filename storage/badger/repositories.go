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

package badger

import "github.com/poiesic/gleanit/storage"

// Repositories bundles every repository sharing one backend.
type Repositories struct {
	Backend     *Backend
	Jobs        *JobRepository
	Objects     *ObjectRepository
	Chunks      *ChunkRepository
	Vectors     *VectorStore
	Checkpoints *CheckpointRepository
}

// OpenRepositories opens a backend at path and builds every repository on it.
// Caller must call Close when done.
func OpenRepositories(path string, inMemory bool, embedder storage.Embedder) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	objects, err := NewObjectRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:     backend,
		Jobs:        NewJobRepository(backend),
		Objects:     objects,
		Chunks:      NewChunkRepository(backend),
		Vectors:     NewVectorStore(backend, embedder),
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
func NewMemoryRepositories(embedder storage.Embedder) (*Repositories, error) {
	return OpenRepositories("", true, embedder)
}

// Close releases the object ID sequence and closes the backend.
func (r *Repositories) Close() error {
	if err := r.Objects.Close(); err != nil {
		r.Backend.Close()
		return err
	}
	return r.Backend.Close()
}
