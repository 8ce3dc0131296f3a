package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls an OpenAI-compatible Chat Completions API.
type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAIClient creates a client bound to one model. If apiKey is empty,
// it falls back to the OPENAI_API_KEY env var; OPENAI_BASE_URL overrides the
// endpoint for compatible backends.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (c *OpenAIClient) Name() string { return "OpenAI:" + c.model }
func (c *OpenAIClient) Close() error { return nil }

type openaiChatReq struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends the prompt as a single user message. Newer model families
// reject max_tokens in favor of max_completion_tokens, so the limit field is
// chosen by model name.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Result, error) {
	body := openaiChatReq{
		Model: c.model,
		Messages: []openaiMessage{
			{Role: "system", Content: "You are a helpful AI assistant."},
			{Role: "user", Content: req.Prompt},
		},
	}
	if strings.HasPrefix(c.model, "gpt-5") || strings.HasPrefix(c.model, "gpt-4o") {
		body.MaxCompletionTokens = req.MaxTokens
	} else {
		body.MaxTokens = req.MaxTokens
	}

	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(raw) > max {
			raw = raw[:max]
		}
		return nil, newAPIError("openai", resp.StatusCode, string(raw))
	}

	var out openaiChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}
	return &Result{
		Text: strings.TrimSpace(out.Choices[0].Message.Content),
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}
