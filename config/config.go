package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	HTTPPort     string
	HTTPSPort    string
	Domains      []string
	CertCacheDir string

	DatabaseURL string

	OpenAIAPIKey    string
	OpenAIAPIURL    string
	CompletionModel string
	EmbeddingModel  string
	LLMTimeout      time.Duration

	ParseServiceURL   string
	ParseServiceToken string

	// Endpoint that receives fire-and-forget progress callbacks.
	// Empty disables the callback; the in-memory tracker still works.
	CallbackEndpoint string

	ChunkTargetSize int
	ChunkOverlap    int

	BatchSize            int
	MaxConcurrentBatches int
	ProgressEvery        int

	// Wall-clock ceiling for one whole run. Zero disables it.
	RunDeadline time.Duration

	RetryBase           time.Duration
	RetryMaxRateLimit   time.Duration
	RetryMaxServerError time.Duration
	MaxAttempts         int

	SemanticCacheEnabled   bool
	SemanticCacheThreshold float64
	SemanticCacheMaxChars  int

	ExactReuseEnabled bool
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8086"),
		HTTPSPort:    getEnv("HTTPS_PORT", "443"),
		Domains:      []string{getEnv("DOMAIN", "example.com")},
		CertCacheDir: getEnv("CERT_CACHE_DIR", "/etc/letsencrypt/live/example.com"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIURL:    getEnv("OPENAI_API_URL", "https://api.openai.com/v1"),
		CompletionModel: getEnv("COMPLETION_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMTimeout:      time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		ParseServiceURL:   getEnv("PARSE_SERVICE_URL", ""),
		ParseServiceToken: getEnv("PARSE_SERVICE_TOKEN", ""),

		CallbackEndpoint: getEnv("CALLBACK_ENDPOINT", ""),

		ChunkTargetSize: getEnvAsInt("CHUNK_TARGET_SIZE", 3000),
		ChunkOverlap:    getEnvAsInt("CHUNK_OVERLAP", 200),

		BatchSize:            getEnvAsInt("BATCH_SIZE", 3),
		MaxConcurrentBatches: getEnvAsInt("MAX_CONCURRENT_BATCHES", 2),
		ProgressEvery:        getEnvAsInt("PROGRESS_EVERY", 1),

		RunDeadline: time.Duration(getEnvAsInt("RUN_DEADLINE_MINUTES", 30)) * time.Minute,

		RetryBase:           time.Duration(getEnvAsInt("RETRY_BASE_MS", 500)) * time.Millisecond,
		RetryMaxRateLimit:   time.Duration(getEnvAsInt("RETRY_MAX_MS_RATE_LIMIT", 20000)) * time.Millisecond,
		RetryMaxServerError: time.Duration(getEnvAsInt("RETRY_MAX_MS_SERVER_ERROR", 8000)) * time.Millisecond,
		MaxAttempts:         getEnvAsInt("MAX_ATTEMPTS", 3),

		SemanticCacheEnabled:   getEnvAsBool("SEMANTIC_CACHE_ENABLED", true),
		SemanticCacheThreshold: getEnvAsFloat("SEMANTIC_CACHE_THRESHOLD", 0.93),
		SemanticCacheMaxChars:  getEnvAsInt("SEMANTIC_CACHE_MAX_CHARS", 8000),

		ExactReuseEnabled: getEnvAsBool("EXACT_REUSE_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
