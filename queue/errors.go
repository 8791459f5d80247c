package queue

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrProcessorRequired is returned when a nil processor is registered.
	ErrProcessorRequired = errors.New("processor required")

	// ErrAlreadyRunning is returned by Start on a dispatcher that is already running.
	ErrAlreadyRunning = errors.New("dispatcher already running")

	// ErrInvalidConcurrency is returned when concurrency is less than one.
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
)
