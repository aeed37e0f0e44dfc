package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	MigrateOnBoot bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Context persistence tuning
	ContextCacheTTL time.Duration
	ContextMaxAge   time.Duration
	HistoryLimit    int

	// Per-turn pipeline tuning
	StorageTimeout    time.Duration
	LLMTimeout        time.Duration
	RateLimitPerMin   int
	ResponseCacheTTL  time.Duration
	MaxMessageLength  int
	MaxResponseLength int

	// Trial search
	TrialSearchLimit int

	// Gemini LLM fallback
	GeminiAPIKey  string
	GeminiModelID string

	// HTTP surface rate limiting (requests/sec, burst)
	HTTPRateLimit float64
	HTTPRateBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrateOnBoot: getEnvAsBool("MIGRATE_ON_BOOT", false),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ContextCacheTTL: getEnvAsDuration("CONTEXT_CACHE_TTL", 5*time.Minute),
		ContextMaxAge:   getEnvAsDuration("CONTEXT_MAX_AGE", 24*time.Hour),
		HistoryLimit:    getEnvAsInt("HISTORY_LIMIT", 10),

		StorageTimeout:    getEnvAsDuration("STORAGE_TIMEOUT", 5*time.Second),
		LLMTimeout:        getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),
		RateLimitPerMin:   getEnvAsInt("RATE_LIMIT_PER_MIN", 60),
		ResponseCacheTTL:  getEnvAsDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
		MaxMessageLength:  getEnvAsInt("MAX_MESSAGE_LENGTH", 1000),
		MaxResponseLength: getEnvAsInt("MAX_RESPONSE_LENGTH", 5000),

		TrialSearchLimit: getEnvAsInt("TRIAL_SEARCH_LIMIT", 5),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		HTTPRateLimit: getEnvAsFloat("HTTP_RATE_LIMIT", 10),
		HTTPRateBurst: getEnvAsInt("HTTP_RATE_BURST", 20),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
