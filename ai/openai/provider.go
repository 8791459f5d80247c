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

package openai

import (
	"log/slog"

	"github.com/poiesic/gleanit/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.AIProvider against an OpenAI-compatible API.
type Provider struct {
	config     *ai.Config
	embedder   *ai.TextEmbedder
	chat       *openai.LLM
	summarizer *ai.ModelSummarizer
	logger     *slog.Logger
}

// NewProvider creates a new OpenAI provider with the given configuration.
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	chat, err := newChatModel(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:     config,
		embedder:   embedder,
		chat:       chat,
		summarizer: ai.NewModelSummarizer(chat, 0),
		logger:     slog.Default().With("component", "openai-provider"),
	}, nil
}

// newChatModel creates the client used for chunking and summaries.
func newChatModel(config *ai.Config) (*openai.LLM, error) {
	return openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.ChatModel),
	)
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Summarizer returns the document summarizer.
func (p *Provider) Summarizer() ai.Summarizer {
	return p.summarizer
}

// ChatModel returns the chat model.
func (p *Provider) ChatModel() llms.Model {
	return p.chat
}

// Close releases resources held by the provider.
// Currently this is a no-op as the langchaingo clients don't require cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
