package llm

import "context"

// Request is one generation call. The model is bound at client construction;
// the request carries only per-call inputs.
type Request struct {
	Prompt    string
	MaxTokens int
}

// Usage is the token accounting reported by a backend for one call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is the primary text plus usage metadata from one generation call.
type Result struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Client is a language-model backend bound to one model.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Result, error)
	Close() error
}
