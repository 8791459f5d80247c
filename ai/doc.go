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


// Package ai provides abstractions for AI services used in gleanit.
//
// This package defines interfaces for text embeddings and document summaries
// and exposes the chat model used by the chunking agent. The core domain and
// the ingestion pipeline depend on these abstractions rather than on a
// concrete model server.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - Summarizer: Condenses a document into a short abstract
//   - AIProvider: Aggregates the embedder, the summarizer and the chat model
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/ollama: Ollama's native API through langchaingo
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Both production providers share TextEmbedder and ModelSummarizer from this
// package, so they differ only in how the langchaingo clients are built.
//
// # Constructor Return Type Pattern
//
// Provider constructors (openai.NewProvider, ollama.NewProvider) return the
// ai.AIProvider interface. Test utility constructors in ai/mock return
// concrete types so tests can script behavior and assert on call counts.
//
// # Model Output
//
// Small local models often wrap JSON in markdown fences or drop the opening
// quote of a key. CleanJSON undoes both and is applied to every structured
// response before decoding.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	summary, err := provider.Summarizer().Summarize(ctx, "Title", body)
package ai
