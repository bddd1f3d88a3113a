package agent

import (
	"context"
	"sync"

	"github.com/jmylchreest/gleaner/internal/llm"
)

// fakeGateway replays canned responses in order and records prompts.
type fakeGateway struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *fakeGateway) Query(_ context.Context, prompt string, _ llm.Options) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}

	text := ""
	if len(g.responses) > 0 {
		text = g.responses[0]
		g.responses = g.responses[1:]
	}
	return &llm.Response{Text: text, Model: "fake-model", Provider: "fake"}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}
