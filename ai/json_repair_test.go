package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding space", "  \n```json [] ```  ", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.input))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"valid json untouched", `{"summary": "ok"}`, `{"summary": "ok"}`},
		{"missing opening quote", `{summary": "ok"}`, `{"summary": "ok"}`},
		{"missing quote after comma", `{"a": 1, chunk_idx": 2}`, `{"a": 1, "chunk_idx": 2}`},
		{"array of objects", `[{content": "x"}]`, `[{"content": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairJSON(tt.input))
		})
	}
}

func TestCleanJSON(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	err := json.Unmarshal([]byte(CleanJSON("```json\n{summary\": \"fixed\"}\n```")), &out)
	assert.NoError(t, err)
	assert.Equal(t, "fixed", out.Summary)
}
