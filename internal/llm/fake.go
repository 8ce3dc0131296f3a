package llm

import (
	"context"
	"sync"
)

// FakeClient returns canned completions for offline use and tests.
// It records every prompt it receives.
type FakeClient struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

func NewFakeClient(reply string) *FakeClient {
	if reply == "" {
		reply = "fake completion"
	}
	return &FakeClient{Reply: reply}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	promptTokens := len(req.Prompt) / 4
	completionTokens := len(f.Reply) / 4
	return &Result{
		Text: f.Reply,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// Prompts returns a copy of every prompt seen so far.
func (f *FakeClient) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
