package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
	AIAPIKey       string
	EmbedModel     string
	EmbedDim       int
	GenModel       string
	TokenizerModel string
	VectorBackend  string // "postgres" or "memory"
	JWTSecret      string
	Port           string
}

// LoadConfig loads the environment variables and returns the config.
// Missing required settings are a startup error, not a runtime one.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "memora-docs"),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:       getEnvInt("EMBED_DIM", 768),
		GenModel:       getEnv("GEN_MODEL", "gemini-1.5-flash"),
		TokenizerModel: getEnv("TOKENIZER_MODEL", "cl100k_base"),
		VectorBackend:  getEnv("VECTOR_BACKEND", "postgres"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Port:           getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET not set")
	}
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("config: EMBED_MODEL not set")
	}
	if cfg.EmbedDim < 1 {
		return nil, fmt.Errorf("config: EMBED_DIM must be >= 1, got %d", cfg.EmbedDim)
	}
	if cfg.VectorBackend != "postgres" && cfg.VectorBackend != "memory" {
		return nil, fmt.Errorf("config: VECTOR_BACKEND must be postgres or memory, got %q", cfg.VectorBackend)
	}

	return cfg, nil
}

// Helper to read environment variables with a default fallback.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
