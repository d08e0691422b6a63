package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the service, loaded once at startup from
// the environment (optionally seeded from a .env file).
type Config struct {
	Port    string
	GinMode string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDB       string
	ClickHouseUser     string
	ClickHousePassword string

	PostgresURL string

	JWTSecret string

	// Rate limiting for the ingestion endpoint.
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Ingestion fallback buffer.
	IngestTimeout   time.Duration
	BufferCapacity  int
	BufferRetryWait time.Duration

	// Cache layer.
	CacheDir        string
	CacheInMemory   bool
	HeatmapCacheTTL time.Duration
	StatsCacheTTL   time.Duration

	// Scheduler.
	DailyAggregationSpec string
	CacheWarmSpec        string
	WarmTopPages         int
}

// Load reads configuration from the environment. A missing .env file is not
// an error; explicit environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    envOr("PORT", "8080"),
		GinMode: os.Getenv("GIN_MODE"),

		ClickHouseHost:     os.Getenv("CLICKHOUSE_HOST"),
		ClickHouseDB:       os.Getenv("CLICKHOUSE_DB_NAME"),
		ClickHouseUser:     os.Getenv("CLICKHOUSE_USERNAME"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),

		PostgresURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET_KEY"),

		RateLimitWindow: envDurationOr("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:    envIntOr("RATE_LIMIT_MAX", 100),

		IngestTimeout:   envDurationOr("INGEST_TIMEOUT", 5*time.Second),
		BufferCapacity:  envIntOr("INGEST_BUFFER_CAPACITY", 10000),
		BufferRetryWait: envDurationOr("INGEST_BUFFER_RETRY_WAIT", 30*time.Second),

		CacheDir:        envOr("CACHE_DIR", "/var/lib/heatlens/cache"),
		CacheInMemory:   envBoolOr("CACHE_IN_MEMORY", false),
		HeatmapCacheTTL: envDurationOr("HEATMAP_CACHE_TTL", time.Hour),
		StatsCacheTTL:   envDurationOr("STATS_CACHE_TTL", 30*time.Minute),

		DailyAggregationSpec: envOr("DAILY_AGGREGATION_CRON", "0 2 * * *"),
		CacheWarmSpec:        envOr("CACHE_WARM_CRON", "0 */6 * * *"),
		WarmTopPages:         envIntOr("CACHE_WARM_TOP_PAGES", 20),
	}

	portStr := envOr("CLICKHOUSE_NATIVE_PORT", "9000")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT %q: %w", portStr, err)
	}
	cfg.ClickHousePort = port

	if cfg.ClickHouseHost == "" || cfg.ClickHouseDB == "" {
		return nil, fmt.Errorf("CLICKHOUSE_HOST and CLICKHOUSE_DB_NAME must be set")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
