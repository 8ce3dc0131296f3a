package main

import (
	"context"
	"log"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"flowchat/internal/config"
	"flowchat/internal/engine"
	"flowchat/internal/llm"
	"flowchat/internal/retrieval"
	"flowchat/internal/server"
	"flowchat/internal/session"
	"flowchat/internal/store"
	"flowchat/internal/websearch"
	"flowchat/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st := store.NewFromEnv(cfg.StorePath)
	st.EnsureLoaded()
	defer st.Close()

	reg := buildRegistry(cfg)
	gateway := llm.NewGateway(reg, websearch.New(cfg.SerpAPIKey))
	defer gateway.Close()

	retrievalStore := buildRetrieval(cfg)
	defer retrievalStore.Close()

	validator := &workflow.Validator{
		HasCredential: func(p workflow.Provider) bool { return reg.Has(string(p)) },
	}
	planner := workflow.NewPlanner(validator, cfg.PlanCacheSize)

	eng := engine.New(gateway, retrievalStore)
	orch := session.NewOrchestrator(st, planner, eng, cfg.MaxConcurrent)

	mux := server.New(st, planner, orch).Routes()

	log.Printf("flowchat api listening on %s (env=%s, providers=%v)", cfg.Port, cfg.Env, reg.Providers())
	h2s := &http2.Server{}
	if err := http.ListenAndServe(cfg.Port, h2c.NewHandler(mux, h2s)); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// buildRegistry registers a backend per configured credential. A provider
// without a key stays unregistered, which validation reports as a missing
// credential instead of failing mid-run.
func buildRegistry(cfg *config.Config) *llm.Registry {
	reg := llm.NewRegistry()
	if cfg.OpenAIKey != "" {
		reg.Register(string(workflow.ProviderOpenAI), func(ctx context.Context, model string) (llm.Client, error) {
			return llm.NewOpenAIClient(cfg.OpenAIKey, model)
		})
	}
	if cfg.GeminiKey != "" {
		reg.Register(string(workflow.ProviderGemini), func(ctx context.Context, model string) (llm.Client, error) {
			return llm.NewGeminiClient(ctx, cfg.GeminiKey, model)
		})
	}
	return reg
}

// buildRetrieval picks the vector store: qdrant when configured, otherwise
// the in-memory store so knowledge nodes stay usable locally.
func buildRetrieval(cfg *config.Config) retrieval.Gateway {
	if cfg.Qdrant.Host == "" {
		log.Printf("retrieval: QDRANT_HOST not set, using in-memory store")
		return retrieval.NewMemoryStore()
	}
	embedder, err := retrieval.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Printf("retrieval: embedder unavailable (%v), using in-memory store", err)
		return retrieval.NewMemoryStore()
	}
	qs, err := retrieval.NewQdrantStore(retrieval.QdrantConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
	}, embedder)
	if err != nil {
		log.Printf("retrieval: qdrant unavailable (%v), using in-memory store", err)
		return retrieval.NewMemoryStore()
	}
	return qs
}
