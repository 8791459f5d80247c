package chunker

import "fmt"

const systemPromptTemplate = `You split documents into chunks for a retrieval index.

Split the text the user sends into consecutive chunks of %d to %d tokens each.
Never break a sentence across two chunks. Keep headings with the paragraph that
follows them. Chunks must cover the text in order without overlapping.

Respond with a JSON array only. Each element is an object:

[
  {
    "chunkIdx": 0,
    "content": "<the exact chunk text>",
    "summary": "<one sentence describing the chunk>",
    "tags": ["<short topic tag>", "..."],
    "propositions": ["<a standalone factual statement from the chunk>", "..."]
  }
]

Rules:
- chunkIdx starts at 0 and increases by one per chunk.
- content is copied from the document, not paraphrased.
- summary, tags and propositions are optional but must have the types shown.
- No markdown, no commentary, nothing outside the JSON array.`

const jsonOnlyAmendment = `Your previous reply could not be used: %s.
Reply again with ONLY the JSON array described above. Do not wrap it in markdown.
Every element needs an integer chunkIdx >= 0 and a content string of at least %d characters.`

func buildSystemPrompt(cfg Config) string {
	return fmt.Sprintf(systemPromptTemplate, cfg.MinChunkTokens, cfg.MaxTargetTokens)
}

func buildAmendment(cfg Config, reason error) string {
	return fmt.Sprintf(jsonOnlyAmendment, reason, cfg.MinContentLength)
}
