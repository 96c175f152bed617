package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	SourceBackendMemory = "memory"
	SourceBackendSheets = "sheets"

	StoreBackendMemory    = "memory"
	StoreBackendSQLite    = "sqlite"
	StoreBackendFirestore = "firestore"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string

	LogLevel string

	// Where sheet values come from
	SourceBackend            string
	DataDir                  string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Where connections and snapshots are kept
	StoreBackend        string
	SQLiteDBPath        string
	FirestoreProjectID  string
	FirestoreCollection string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Fetching
	SourceFetchTimeout time.Duration
	SourceFetchRetries int
	FetchConcurrency   int
	CacheTTL           time.Duration
	CacheSize          int

	// Normalization
	IncomeKeywords []string
	FallbackYear   int

	// AI analysis, disabled without a key
	GeminiAPIKey string
	GeminiModel  string

	// Worker
	SnapshotInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES", nil),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		SourceBackend:            getEnv("SOURCE_BACKEND", SourceBackendMemory),
		DataDir:                  getEnv("DATA_DIR", "./data/sheets"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		StoreBackend:        getEnv("STORE_BACKEND", StoreBackendMemory),
		SQLiteDBPath:        getEnv("SQLITE_DB_PATH", "./data/finboard.db"),
		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "finboard"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "connection_events"),

		SourceFetchTimeout: getEnvDuration("SOURCE_FETCH_TIMEOUT", 10*time.Second),
		SourceFetchRetries: getEnvInt("SOURCE_FETCH_RETRIES", 2),
		FetchConcurrency:   getEnvInt("FETCH_CONCURRENCY", 4),
		CacheTTL:           getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize:          getEnvInt("CACHE_SIZE", 256),

		IncomeKeywords: getEnvList("INCOME_KEYWORDS", []string{"receita", "income"}),
		FallbackYear:   getEnvInt("FALLBACK_YEAR", 0),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 15*time.Minute),
	}
}

// InsightsEnabled reports whether an LLM key is configured.
func (c *Config) InsightsEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	sourceBackends := []string{SourceBackendMemory, SourceBackendSheets}
	if !slices.Contains(sourceBackends, c.SourceBackend) {
		errs = append(errs, fmt.Sprintf("invalid source backend '%s': must be one of %v", c.SourceBackend, sourceBackends))
	}
	if c.SourceBackend == SourceBackendSheets && c.GoogleServiceAccountJSON == "" {
		if c.GoogleServiceAccountFile == "" {
			errs = append(errs, "GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE is required for the sheets backend")
		} else if _, err := os.Stat(c.GoogleServiceAccountFile); err != nil {
			errs = append(errs, fmt.Sprintf("service account file not readable: %s", c.GoogleServiceAccountFile))
		}
	}

	storeBackends := []string{StoreBackendMemory, StoreBackendSQLite, StoreBackendFirestore}
	if !slices.Contains(storeBackends, c.StoreBackend) {
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, storeBackends))
	}
	switch c.StoreBackend {
	case StoreBackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite store")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case StoreBackendFirestore:
		if c.FirestoreProjectID == "" {
			errs = append(errs, "FIRESTORE_PROJECT_ID is required when using firestore store")
		}
		if c.FirestoreCollection == "" {
			errs = append(errs, "FIRESTORE_COLLECTION cannot be empty when using firestore store")
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.SourceFetchTimeout < 100*time.Millisecond || c.SourceFetchTimeout > 5*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid source fetch timeout %v: must be between 100ms and 5m", c.SourceFetchTimeout))
	}
	if c.SourceFetchRetries < 0 || c.SourceFetchRetries > 10 {
		errs = append(errs, fmt.Sprintf("invalid source fetch retries %d: must be between 0 and 10", c.SourceFetchRetries))
	}
	if c.FetchConcurrency < 1 || c.FetchConcurrency > 64 {
		errs = append(errs, fmt.Sprintf("invalid fetch concurrency %d: must be between 1 and 64", c.FetchConcurrency))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}
	if c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	if c.FallbackYear != 0 && (c.FallbackYear < 1900 || c.FallbackYear > 9999) {
		errs = append(errs, fmt.Sprintf("invalid fallback year %d", c.FallbackYear))
	}
	if c.SnapshotInterval < time.Minute || c.SnapshotInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid snapshot interval %v: must be between 1 minute and 24 hours", c.SnapshotInterval))
	}
	if c.GeminiAPIKey != "" && c.GeminiModel == "" {
		errs = append(errs, "GEMINI_MODEL cannot be empty when GEMINI_API_KEY is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
