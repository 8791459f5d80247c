package gleanit

import (
	"fmt"

	"github.com/poiesic/gleanit/ai"
	"github.com/poiesic/gleanit/ai/ollama"
	"github.com/poiesic/gleanit/ai/openai"
)

// NewProvider builds the AI provider for config.Backend.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Backend {
	case ai.BackendOllama:
		return ollama.NewProvider(config)
	case ai.BackendOpenAI:
		return openai.NewProvider(config)
	}
	return nil, fmt.Errorf("ai config: unknown backend %q", config.Backend)
}
