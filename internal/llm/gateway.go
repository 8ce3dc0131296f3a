package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"flowchat/internal/websearch"
)

// Gateway is the provider-facing surface the execution engine talks to. It
// resolves provider/model pairs through the registry, caches built clients,
// and wraps every client with retry and rate-limit middleware.
type Gateway struct {
	reg    *Registry
	search *websearch.Client

	maxAttempts int
	baseDelay   time.Duration

	mu      sync.Mutex
	clients map[string]Client
}

// NewGateway wires a gateway over the registry. search may be nil when no
// web-search credential is configured; WebSearch then returns no results.
func NewGateway(reg *Registry, search *websearch.Client) *Gateway {
	return &Gateway{
		reg:         reg,
		search:      search,
		maxAttempts: 3,
		baseDelay:   300 * time.Millisecond,
		clients:     map[string]Client{},
	}
}

func (g *Gateway) client(ctx context.Context, provider, model string) (Client, error) {
	key := normalizeProvider(provider) + "::" + strings.TrimSpace(model)
	g.mu.Lock()
	defer g.mu.Unlock()
	if cli, ok := g.clients[key]; ok {
		return cli, nil
	}
	inner, err := g.reg.Build(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	cli := Wrap(inner,
		Retry(g.maxAttempts, g.baseDelay),
		RateLimitFromEnv("LLM", strings.ToUpper(normalizeProvider(provider))),
		Logging(),
	)
	g.clients[key] = cli
	return cli, nil
}

// Generate resolves the backend and runs one generation call through the
// middleware stack.
func (g *Gateway) Generate(ctx context.Context, provider, model, prompt string, maxTokens int) (*Result, error) {
	cli, err := g.client(ctx, provider, model)
	if err != nil {
		return nil, NewPermanentError(err)
	}
	return cli.Generate(ctx, Request{Prompt: prompt, MaxTokens: maxTokens})
}

// WebSearch runs the optional web-search tool.
func (g *Gateway) WebSearch(ctx context.Context, query string, limit int) ([]websearch.Result, error) {
	if g.search == nil {
		return nil, nil
	}
	return g.search.Search(ctx, query, limit)
}

// Close releases every cached client.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, cli := range g.clients {
		_ = cli.Close()
		delete(g.clients, key)
	}
	return nil
}
