package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the FixSight server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Vision    VisionConfig
	Reasoning ReasoningConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// SessionConfig tunes the per-session gate: retention of session keys,
// the minimum interval between accepted frames, and the lock lease.
// The lease must exceed the vision call timeout so a normal completion
// always releases the lock before the lease expires.
type SessionConfig struct {
	Backend      string
	TTL          time.Duration
	MinInterval  time.Duration
	LockLease    time.Duration
	HistoryLimit int
}

type VisionConfig struct {
	Provider string
	Timeout  time.Duration
	Gemini   GeminiConfig
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type ReasoningConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type EmbeddingConfig struct {
	Provider string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

type RetrievalConfig struct {
	TopK int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

var validSessionBackends = map[string]bool{
	"redis":  true,
	"memory": true,
}

var validVisionProviders = map[string]bool{
	"gemini": true,
	"mock":   true,
}

var validEmbeddingProviders = map[string]bool{
	"gemini": true,
	"mock":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first when present.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	visionProvider := envString("VISION_PROVIDER", "gemini")

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("FIXSIGHT_PORT", 8080),
			Env:            envString("FIXSIGHT_ENV", "development"),
			AllowedOrigins: envStrings("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Session: SessionConfig{
			Backend:      envString("SESSION_BACKEND", "redis"),
			TTL:          envDurationSecs("SESSION_TTL_SECS", 24*time.Hour),
			MinInterval:  envDurationSecs("SESSION_MIN_INTERVAL_SECS", 6*time.Second),
			LockLease:    envDurationSecs("SESSION_LOCK_LEASE_SECS", 30*time.Second),
			HistoryLimit: envInt("SESSION_HISTORY_LIMIT", 50),
		},
		Vision: VisionConfig{
			Provider: visionProvider,
			Timeout:  envDurationSecs("VISION_TIMEOUT_SECS", 20*time.Second),
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-1.5-flash"),
			},
		},
		Reasoning: ReasoningConfig{
			BaseURL:    envString("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:     os.Getenv("GROQ_API_KEY"),
			Model:      envString("GROQ_MODEL", "llama-3.3-70b-versatile"),
			Timeout:    envDurationSecs("GROQ_TIMEOUT_SECS", 30*time.Second),
			MaxRetries: envInt("GROQ_MAX_RETRIES", 3),
		},
		Embedding: EmbeddingConfig{
			Provider: envString("EMBEDDING_PROVIDER", visionProvider),
			APIKey:   envString("EMBEDDING_API_KEY", os.Getenv("GEMINI_API_KEY")),
			Model:    envString("EMBEDDING_MODEL", "text-embedding-004"),
			Timeout:  envDurationSecs("EMBEDDING_TIMEOUT_SECS", 10*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK: envInt("RETRIEVAL_TOP_K", 6),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if !validSessionBackends[c.Session.Backend] {
		return fmt.Errorf("SESSION_BACKEND must be one of redis, memory; got %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is redis")
	}
	if c.Session.LockLease <= c.Vision.Timeout {
		return fmt.Errorf("SESSION_LOCK_LEASE_SECS (%s) must exceed VISION_TIMEOUT_SECS (%s)",
			c.Session.LockLease, c.Vision.Timeout)
	}

	if !validVisionProviders[c.Vision.Provider] {
		return fmt.Errorf("VISION_PROVIDER must be one of gemini, mock; got %q", c.Vision.Provider)
	}
	if c.Vision.Provider == "gemini" && c.Vision.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when VISION_PROVIDER is gemini")
	}

	if c.Reasoning.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if !strings.HasPrefix(c.Reasoning.BaseURL, "http://") && !strings.HasPrefix(c.Reasoning.BaseURL, "https://") {
		return fmt.Errorf("GROQ_BASE_URL must start with http:// or https://, got %q", c.Reasoning.BaseURL)
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of gemini, mock; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "gemini" && c.Embedding.APIKey == "" {
		return fmt.Errorf("EMBEDDING_API_KEY or GEMINI_API_KEY is required when EMBEDDING_PROVIDER is gemini")
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be between 1 and 20, got %d", c.Retrieval.TopK)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envStrings(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
