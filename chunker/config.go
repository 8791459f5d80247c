package chunker

import (
	"errors"
	"time"
)

// Config tunes the chunking agent.
type Config struct {
	// MinChunkTokens and MaxTargetTokens bound the chunk size requested in the prompt.
	MinChunkTokens  int
	MaxTargetTokens int

	// MaxChunkTokens discards any returned chunk above this many tokens.
	// Models overshoot the requested size, so this sits above MaxTargetTokens.
	MaxChunkTokens int

	// MinContentLength is the minimum length in characters of a chunk's content.
	MinContentLength int

	// RetryDelay is the pause before the single transport retry.
	RetryDelay time.Duration

	// Encoding is the tiktoken encoding used to count tokens.
	Encoding string

	// Temperature for the chat model.
	Temperature float64
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		MinChunkTokens:   150,
		MaxTargetTokens:  400,
		MaxChunkTokens:   600,
		MinContentLength: 10,
		RetryDelay:       2 * time.Second,
		Encoding:         "cl100k_base",
		Temperature:      0.0,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.MinChunkTokens <= 0 || c.MaxTargetTokens < c.MinChunkTokens {
		return errors.New("chunker config: chunk token range is invalid")
	}
	if c.MaxChunkTokens < c.MaxTargetTokens {
		return errors.New("chunker config: MaxChunkTokens must be at least MaxTargetTokens")
	}
	if c.MinContentLength < 1 {
		return errors.New("chunker config: MinContentLength must be positive")
	}
	if c.RetryDelay < 0 {
		return errors.New("chunker config: RetryDelay must not be negative")
	}
	return nil
}
