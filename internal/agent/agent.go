// Package agent implements the pipeline's model-backed agents: planner,
// selector generator, extractor, validator and selector recoverer. Agents
// are stateless; every call carries its full request state as arguments.
package agent

import (
	"context"

	"github.com/jmylchreest/gleaner/internal/llm"
)

// Gateway is the slice of the model gateway the agents use.
type Gateway interface {
	Query(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error)
}

// CallConfig carries per-request model routing shared by agent calls.
type CallConfig struct {
	Provider         string
	Model            string
	FallbackProvider string
}

func (c CallConfig) options(temperature float64, maxTokens int) llm.Options {
	return llm.Options{
		Provider:         c.Provider,
		Model:            c.Model,
		FallbackProvider: c.FallbackProvider,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
	}
}
