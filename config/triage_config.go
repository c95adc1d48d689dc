package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Cursor comparison modes for webhook staleness checks.
const (
	CursorCompareNumeric = "numeric"
	CursorCompareString  = "string"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleProjectID    string

	// Import
	ImportQuery       string
	ImportMaxResults  int
	ImportAutoArchive bool

	// Webhook / cursor handling. Gmail historyIds are decimal-rendered
	// uint64 values, so numeric comparison is the default; string mode
	// matches providers with fixed-width opaque cursors.
	CursorCompareMode string

	// Watch renewal
	WatchRenewIntervalMin  int
	WatchRenewLeadTimeHour int

	// Worker
	WorkerID            string
	WorkerMin           int
	WorkerMax           int
	WorkerQueueSize     int
	WorkerScaleInterval time.Duration
	WorkerIdleTimeout   time.Duration

	// Consumer (Redis Stream)
	ConsumerBatchSize  int
	ConsumerBlockMS    int
	ConsumerMaxRetries int

	// Unsubscribe
	UnsubscribeTimeoutSec int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleProjectID:    getEnv("GOOGLE_PROJECT_ID", ""),

		// Import
		ImportQuery:       getEnv("IMPORT_QUERY", "in:inbox"),
		ImportMaxResults:  getEnvInt("IMPORT_MAX_RESULTS", 20),
		ImportAutoArchive: getEnvBool("IMPORT_AUTO_ARCHIVE", false),

		// Webhook
		CursorCompareMode: getEnv("CURSOR_COMPARE_MODE", CursorCompareNumeric),

		// Watch renewal
		WatchRenewIntervalMin:  getEnvInt("WATCH_RENEW_INTERVAL_MIN", 60),
		WatchRenewLeadTimeHour: getEnvInt("WATCH_RENEW_LEAD_TIME_HOUR", 24),

		// Worker
		WorkerID:            getEnv("WORKER_ID", generateWorkerID()),
		WorkerMin:           getEnvInt("WORKER_MIN", 2),
		WorkerMax:           getEnvInt("WORKER_MAX", 16),
		WorkerQueueSize:     getEnvInt("WORKER_QUEUE_SIZE", 1000),
		WorkerScaleInterval: time.Duration(getEnvInt("WORKER_SCALE_INTERVAL_SEC", 10)) * time.Second,
		WorkerIdleTimeout:   time.Duration(getEnvInt("WORKER_IDLE_TIMEOUT_SEC", 30)) * time.Second,

		// Consumer
		ConsumerBatchSize:  getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:    getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		// Unsubscribe
		UnsubscribeTimeoutSec: getEnvInt("UNSUBSCRIBE_TIMEOUT_SEC", 15),
	}

	if cfg.CursorCompareMode != CursorCompareNumeric && cfg.CursorCompareMode != CursorCompareString {
		return nil, fmt.Errorf("invalid CURSOR_COMPARE_MODE %q (want %q or %q)",
			cfg.CursorCompareMode, CursorCompareNumeric, CursorCompareString)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
