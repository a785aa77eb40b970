package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

type Config struct {
	Port            string
	ModelPath       string
	MetadataPath    string
	OnnxRuntimeLib  string
	NormalizePixels bool
	MaxUploadSize   int64
	MaxImagePixels  int
	HistoryBackend  string
	HistoryPath     string
	HistoryDBPath   string
	LogDirectory    string
}

// Load reads configuration from the environment. Values from envFiles (or
// ".env" when none are given) are applied first without overriding variables
// that are already set. Missing files are ignored; a file that exists but
// cannot be parsed is an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		ModelPath:       getEnv("MODEL_PATH", filepath.Join("models", "fruit_classifier.onnx")),
		MetadataPath:    getEnv("MODEL_METADATA_PATH", filepath.Join("models", "fruit_classifier.json")),
		OnnxRuntimeLib:  getEnv("ONNXRUNTIME_LIB", ""),
		NormalizePixels: getEnvAsBool("NORMALIZE_PIXELS", true),
		MaxUploadSize:   getEnvAsInt64("MAX_UPLOAD_SIZE", 10<<20),
		MaxImagePixels:  int(getEnvAsInt64("MAX_IMAGE_PIXELS", 40_000_000)),
		HistoryBackend:  strings.ToLower(getEnv("HISTORY_BACKEND", BackendJSON)),
		HistoryPath:     getEnv("HISTORY_PATH", filepath.Join("data", "history.json")),
		HistoryDBPath:   getEnv("HISTORY_DB_PATH", filepath.Join("data", "history.db")),
		LogDirectory:    getEnv("LOG_DIR", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
