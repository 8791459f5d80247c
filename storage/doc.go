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


// Package storage provides the storage abstraction layer for gleanit.
//
// This package defines repository interfaces that decouple the job queue,
// workers and the chunking coordinator from the embedded database. Every
// component receives the repositories it needs at construction time; there
// is no package level database handle.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - JobRepository: the durable ingestion job queue
//   - ObjectRepository: content objects and their processing status
//   - ChunkRepository: ordered chunks of each object
//   - VectorStore: embedded chunk documents, upserted by stable id
//
// # Usage
//
// Open a backend and create repositories from it:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	jobs := badger.NewJobRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories(embedder)
//
// # Serialization
//
// Rows are stored as CBOR. Job payloads are stored next to the job and
// decoded into the typed variant for the job's type.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
