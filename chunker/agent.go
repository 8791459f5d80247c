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

package chunker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/poiesic/gleanit/core"
	"github.com/tmc/langchaingo/llms"
)

// Agent splits object text into chunks with a chat model.
// It holds no per-call state and is safe for concurrent use.
type Agent struct {
	model   llms.Model
	config  Config
	counter TokenCounter
	logger  *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent) error

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(a *Agent) error {
		if counter == nil {
			return errors.New("token counter cannot be nil")
		}
		a.counter = counter
		return nil
	}
}

// WithLogger sets the logger for the agent.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		a.logger = logger.With("component", "chunker")
		return nil
	}
}

// New creates a chunking agent backed by model.
func New(model llms.Model, config Config, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, errors.New("chat model cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		model:  model,
		config: config,
		logger: slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.counter == nil {
		a.counter = NewTokenCounter(config.Encoding, a.logger)
	}
	return a, nil
}

// Chunk splits text into chunks for objectID. The returned chunks are indexed
// 0..N-1 in document order. Every error names the object.
func (a *Agent) Chunk(ctx context.Context, objectID core.ID, text string) ([]core.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("chunk object %d: %w", objectID, ErrEmptyText)
	}

	logger := a.logger.With("object_id", objectID)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildSystemPrompt(a.config)),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	reply, err := a.generate(ctx, logger, messages)
	if err != nil {
		return nil, fmt.Errorf("chunk object %d: %w", objectID, err)
	}

	candidates, err := parseCandidates(reply, a.config.MinContentLength)
	if err != nil {
		logger.Warn("chunking response rejected, retrying with JSON-only instructions", "err", err)
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeAI, reply),
			llms.TextParts(llms.ChatMessageTypeSystem, buildAmendment(a.config, err)),
		)

		reply, err = a.generate(ctx, logger, messages)
		if err != nil {
			return nil, fmt.Errorf("chunk object %d: %w", objectID, err)
		}
		candidates, err = parseCandidates(reply, a.config.MinContentLength)
		if err != nil {
			return nil, fmt.Errorf("chunk object %d: %w: %w", objectID, ErrInvalidResponse, err)
		}
	}

	chunks := a.buildChunks(logger, objectID, candidates)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk object %d: %w: all %d candidates exceeded %d tokens",
			objectID, ErrNoChunks, len(candidates), a.config.MaxChunkTokens)
	}

	logger.Debug("chunked object", "candidates", len(candidates), "chunks", len(chunks))
	return chunks, nil
}

// generate calls the model, retrying a transport failure once after RetryDelay.
func (a *Agent) generate(ctx context.Context, logger *slog.Logger, messages []llms.MessageContent) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(a.config.RetryDelay), 1),
		ctx,
	)

	operation := func() (string, error) {
		response, err := a.model.GenerateContent(ctx, messages, llms.WithTemperature(a.config.Temperature))
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if len(response.Choices) == 0 {
			return "", backoff.Permanent(fmt.Errorf("%w: model returned no choices", ErrInvalidResponse))
		}
		return response.Choices[0].Content, nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("chat model call failed, retrying", "wait", wait, "err", err)
	}

	reply, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return "", fmt.Errorf("generate chunks: %w", err)
	}
	return reply, nil
}

// buildChunks drops oversized candidates and renumbers the rest from 0.
func (a *Agent) buildChunks(logger *slog.Logger, objectID core.ID, candidates []candidate) []core.Chunk {
	slices.SortStableFunc(candidates, func(x, y candidate) int {
		return x.ChunkIdx - y.ChunkIdx
	})

	chunks := make([]core.Chunk, 0, len(candidates))
	for _, c := range candidates {
		tokens := a.counter.CountTokens(c.Content)
		if tokens > a.config.MaxChunkTokens {
			logger.Warn("discarding oversized chunk",
				"chunk_idx", c.ChunkIdx,
				"tokens", tokens,
				"max_tokens", a.config.MaxChunkTokens)
			continue
		}
		chunks = append(chunks, core.Chunk{
			ObjectId:     objectID,
			ChunkIdx:     len(chunks),
			Content:      c.Content,
			Summary:      c.Summary,
			Tags:         c.Tags,
			Propositions: c.Propositions,
			TokenCount:   tokens,
		})
	}
	return chunks
}
