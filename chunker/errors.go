package chunker

import "errors"

var (
	// ErrEmptyText is returned when there is no text to chunk.
	ErrEmptyText = errors.New("no text to chunk")

	// ErrInvalidResponse is returned when the model's reply fails validation
	// after the JSON-only retry.
	ErrInvalidResponse = errors.New("invalid chunking response")

	// ErrNoChunks is returned when every candidate chunk was discarded.
	ErrNoChunks = errors.New("no usable chunks")
)
