package llm

import (
	"context"
	"errors"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a client bound to one model. An empty apiKey lets
// the genai SDK fall back to GEMINI_API_KEY from the environment.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Result, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	res := &Result{Text: text}
	if um := resp.UsageMetadata; um != nil {
		res.Usage = Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}
	return res, nil
}

// mapGeminiError rewrites SDK errors into the package taxonomy so the retry
// middleware and the engine classify them the same way as HTTP backends.
func mapGeminiError(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return newAPIError("gemini", ae.Code, ae.Message)
	}
	return err
}
