package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder vectorizes text with OpenAI's embeddings API.
type OpenAIEmbedder struct {
	http   *http.Client
	apiKey string
	model  string
}

// NewOpenAIEmbedder creates an embedder. An empty apiKey falls back to the
// OPENAI_API_KEY env var; an empty model uses the default embedding model.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("retrieval: OpenAI API key not provided")
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		http:   &http.Client{Timeout: 30 * time.Second},
		apiKey: apiKey,
		model:  model,
	}, nil
}

func (e *OpenAIEmbedder) Close() error { return nil }

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings API returned status %d", resp.StatusCode)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return out.Data[0].Embedding, nil
}
