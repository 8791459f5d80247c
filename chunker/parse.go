package chunker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/gleanit/ai"
)

// candidate is one validated chunk from the model, before size filtering.
type candidate struct {
	ChunkIdx     int
	Content      string
	Summary      string
	Tags         []string
	Propositions []string
}

// rawCandidate mirrors the reply schema. Pointers distinguish missing fields.
type rawCandidate struct {
	ChunkIdx     *float64 `json:"chunkIdx"`
	Content      *string  `json:"content"`
	Summary      *string  `json:"summary"`
	Tags         []string `json:"tags"`
	Propositions []string `json:"propositions"`
}

// parseCandidates decodes and validates a model reply. A bare array is
// expected; an object wrapping it under "chunks" is accepted too, since
// JSON-mode servers refuse to emit top-level arrays.
func parseCandidates(reply string, minContentLength int) ([]candidate, error) {
	cleaned := ai.CleanJSON(reply)
	if cleaned == "" {
		return nil, errors.New("empty reply")
	}

	payload := []byte(cleaned)
	if bytes.HasPrefix(payload, []byte("{")) {
		var wrapper struct {
			Chunks json.RawMessage `json:"chunks"`
		}
		if err := json.Unmarshal(payload, &wrapper); err != nil {
			return nil, fmt.Errorf("reply is not valid JSON: %w", err)
		}
		if len(wrapper.Chunks) == 0 {
			return nil, errors.New("reply object has no chunks array")
		}
		payload = wrapper.Chunks
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(payload, &elements); err != nil {
		return nil, fmt.Errorf("reply is not a JSON array: %w", err)
	}
	if len(elements) == 0 {
		return nil, errors.New("reply contains no chunks")
	}

	candidates := make([]candidate, 0, len(elements))
	for i, element := range elements {
		var raw rawCandidate
		if err := json.Unmarshal(element, &raw); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		c, err := raw.validate(minContentLength)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (r rawCandidate) validate(minContentLength int) (candidate, error) {
	if r.ChunkIdx == nil {
		return candidate{}, errors.New("chunkIdx is required")
	}
	idx := *r.ChunkIdx
	if idx < 0 || idx != math.Trunc(idx) || idx > math.MaxInt32 {
		return candidate{}, fmt.Errorf("chunkIdx %v is not a non-negative integer", idx)
	}
	if r.Content == nil {
		return candidate{}, errors.New("content is required")
	}
	content := strings.TrimSpace(*r.Content)
	if utf8.RuneCountInString(content) < minContentLength {
		return candidate{}, fmt.Errorf("content shorter than %d characters", minContentLength)
	}

	c := candidate{
		ChunkIdx:     int(idx),
		Content:      content,
		Tags:         compact(r.Tags),
		Propositions: compact(r.Propositions),
	}
	if r.Summary != nil {
		c.Summary = strings.TrimSpace(*r.Summary)
	}
	return c, nil
}

// compact trims entries and drops blanks.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
