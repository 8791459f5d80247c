// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Summarizer,
// llms.Model and ai.AIProvider for use in unit tests. The mocks allow tests to
// run without external AI service dependencies and enable controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Deterministic embeddings
//	embedder := mock.NewMockEmbedder()
//	vector, err := embedder.EmbedText(ctx, "test")
//
//	// Scripted chat replies for the chunking agent
//	chat := mock.NewMockChatModel().Respond(`[{"chunkIdx":0,"content":"..."}]`)
//
//	// Check call counts
//	count := chat.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockSummarizer: Returns the first sentence of the text
//   - MockChatModel: Replays scripted replies, then fails with ErrNoResponse
//   - MockProvider: Aggregates the three
package mock
