package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	LLMProvider    string
	OpenAIKey      string
	OpenAIEndpoint string
	OpenAIModel    string
	GoogleApiKey   string
	GoogleModel    string
	ContextSize    int

	SearchProvider       string
	FirecrawlKey         string
	FirecrawlBaseURL     string
	FirecrawlConcurrency int
	FirecrawlRPM         int

	DatabaseURL    string
	EmbeddingModel string
	CollectionName string
	Port           string
}

func Load() *Config {
	return &Config{
		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIKey:      getEnv("OPENAI_KEY", ""),
		OpenAIEndpoint: getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("CUSTOM_MODEL", "o3-mini"),
		GoogleApiKey:   getEnv("GOOGLE_API_KEY", ""),
		GoogleModel:    getEnv("GOOGLE_MODEL", "gemini-2.5-flash"),
		ContextSize:    getEnvAsInt("CONTEXT_SIZE", 128_000),

		SearchProvider:       strings.ToLower(getEnv("SEARCH_PROVIDER", "firecrawl")),
		FirecrawlKey:         getEnv("FIRECRAWL_KEY", ""),
		FirecrawlBaseURL:     getEnv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"),
		FirecrawlConcurrency: getEnvAsInt("FIRECRAWL_CONCURRENCY", 2),
		FirecrawlRPM:         getEnvAsInt("FIRECRAWL_RPM", 0),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_learnings"),
		Port:           getEnv("PORT", "3051"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
