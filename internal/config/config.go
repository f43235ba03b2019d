package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type DraftDriver string

const (
	DraftMemory   DraftDriver = "memory"
	DraftSQLite   DraftDriver = "sqlite"
	DraftPostgres DraftDriver = "postgres"
	DraftRedis    DraftDriver = "redis"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string

	LogLevel string
	LogDev   bool

	DraftDriver   DraftDriver
	DBDSN         string
	RedisURL      string
	RedisPoolSize int
	DraftTTL      time.Duration // redis only; 0 keeps drafts until cleared

	CatalogPath string // optional YAML table replacing the built-in surveys

	SubmitDelay time.Duration
	CopyDelay   time.Duration

	ReceiptSecret string
	ReceiptIssuer string

	SessionIdle   time.Duration
	ExportBaseDir string
}

func FromEnv() Config {
	return Config{
		HTTPAddr:      envOr("HTTP_ADDR", ":8080"),
		CORSOrigins:   csvOr("CORS_ORIGINS", "http://localhost:3000"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogDev:        envBool("LOG_DEV", false),
		DraftDriver:   DraftDriver(envOr("DRAFT_DRIVER", string(DraftMemory))),
		DBDSN:         envOr("DB_DSN", ""),
		RedisURL:      envOr("REDIS_URL", "redis://localhost:6379/0"),
		RedisPoolSize: envInt("REDIS_POOL_SIZE", 0),
		DraftTTL:      envDuration("DRAFT_TTL", 0),
		CatalogPath:   envOr("CATALOG_PATH", ""),
		SubmitDelay:   envDuration("SUBMIT_DELAY", time.Second),
		CopyDelay:     envDuration("COPY_DELAY", time.Second),
		ReceiptSecret: envOr("RECEIPT_SECRET", "dev-receipt-secret"),
		ReceiptIssuer: envOr("RECEIPT_ISSUER", "mindengage-surveys"),
		SessionIdle:   envDuration("SESSION_IDLE", 30*time.Minute),
		ExportBaseDir: envOr("EXPORT_BASE_DIR", "./data/exports"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
