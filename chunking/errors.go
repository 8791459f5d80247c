package chunking

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrObjectRepositoryRequired is returned when an object repository is not provided.
	ErrObjectRepositoryRequired = errors.New("object repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrAlreadyRunning is returned by Start on a coordinator that is already running.
	ErrAlreadyRunning = errors.New("coordinator already running")
)
