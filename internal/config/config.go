// Package config loads the server configuration from flags, .env, and
// environment variables.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	StorePath     string
	MaxConcurrent int
	PlanCacheSize int

	OpenAIKey  string
	GeminiKey  string
	SerpAPIKey string

	Qdrant         QdrantConfig
	EmbeddingModel string
}

// QdrantConfig configures the vector store backend. An empty Host disables
// qdrant and falls back to the in-memory retrieval store.
type QdrantConfig struct {
	Host   string
	Port   uint32
	APIKey string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:          *port,
		Env:           env,
		StorePath:     firstNonEmpty(strings.TrimSpace(os.Getenv("FLOWCHAT_STORE_PATH")), "flowchat_state.json"),
		MaxConcurrent: intFromEnv("FLOWCHAT_MAX_CONCURRENT", 4),
		PlanCacheSize: intFromEnv("FLOWCHAT_PLAN_CACHE_SIZE", 128),
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		GeminiKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		SerpAPIKey:    strings.TrimSpace(os.Getenv("SERPAPI_API_KEY")),
		Qdrant: QdrantConfig{
			Host:   strings.TrimSpace(os.Getenv("QDRANT_HOST")),
			Port:   uint32(intFromEnv("QDRANT_PORT", 6334)),
			APIKey: strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		},
		EmbeddingModel: strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
	}, nil
}

func intFromEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
