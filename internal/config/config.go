// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Secret seeds the encryption key when ENCRYPTION_KEY is not set.
	Secret        string
	EncryptionKey []byte // 32-byte key for AES-256-GCM encryption

	// Provider credentials read at startup; the settings store can
	// override them later.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaBaseURL   string
	DefaultProvider string
	DefaultModel    string

	// ProviderSeedFile optionally points at a YAML file of provider
	// credentials loaded into the settings store on first boot.
	ProviderSeedFile string

	// CORS
	CORSOrigins []string

	// Fetching
	FetchTimeout time.Duration

	// Extraction
	SelectorConcurrency int
	RequestTimeout      time.Duration

	// Worker
	WorkerPollInterval        time.Duration
	WorkerConcurrency         int
	WorkerShutdownGracePeriod time.Duration
	JobTimeout                time.Duration

	// Rate limiting
	RateLimitPerMinute int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:gleaner.db?_journal=WAL&_timeout=5000"),
		Secret:      getEnv("GLEANER_SECRET", ""),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", ""),

		ProviderSeedFile: getEnv("PROVIDER_SEED_FILE", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		SelectorConcurrency: getEnvInt("SELECTOR_CONCURRENCY", 4),
		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 5*time.Minute),

		WorkerPollInterval:        getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerConcurrency:         getEnvInt("WORKER_CONCURRENCY", 3),
		WorkerShutdownGracePeriod: getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 5*time.Minute),
		JobTimeout:                getEnvDuration("JOB_TIMEOUT", 10*time.Minute),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	// Generate a random secret when none is provided so encrypted settings
	// still work on a fresh install.
	if cfg.Secret == "" {
		cfg.Secret = generateRandomSecret(64)
	}

	// Set up encryption key (derive from the secret if not explicitly set).
	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		cfg.EncryptionKey = deriveEncryptionKey(cfg.Secret)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback (should never happen)
		return "gleaner-secret-change-me-" + base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
// HKDF (HMAC-based Key Derivation Function) is appropriate for deriving keys from
// high-entropy secrets. For low-entropy passwords, use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("gleaner-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// This should never happen with valid inputs
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
