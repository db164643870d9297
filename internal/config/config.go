package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ListenAddr   string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string

	LedgerBaseURL string
	LedgerTimeout time.Duration

	AuditLogDir string

	MaxAmount decimal.Decimal
	PINLength int

	// Location is the reference time zone for "today" in daily-limit
	// aggregation and audit file naming.
	Location *time.Location

	ReconcileInterval time.Duration
	// ReconcileAfter is how long an in-flight record must sit untouched
	// before the reconciler picks it up.
	ReconcileAfter time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment", "error", err)
	}

	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		PostgresDSN:       getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=transactions sslmode=disable"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:      []string{getEnv("KAFKA_BROKER", "localhost:9092")},
		JWTSecret:         getEnv("JWT_SECRET", ""),
		LedgerBaseURL:     getEnv("LEDGER_BASE_URL", "http://localhost:8081"),
		LedgerTimeout:     getDuration("LEDGER_TIMEOUT", 5*time.Second),
		AuditLogDir:       getEnv("AUDIT_LOG_DIR", "./audit-logs"),
		PINLength:         getInt("PIN_LENGTH", 4),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileAfter:    getDuration("RECONCILE_AFTER", time.Minute),
	}

	maxAmount, err := decimal.NewFromString(getEnv("MAX_AMOUNT", "100000"))
	if err != nil {
		slog.Warn("invalid MAX_AMOUNT, falling back to 100000", "error", err)
		maxAmount = decimal.NewFromInt(100000)
	}
	cfg.MaxAmount = maxAmount

	loc, err := time.LoadLocation(getEnv("TIME_ZONE", "UTC"))
	if err != nil {
		slog.Warn("invalid TIME_ZONE, falling back to UTC", "error", err)
		loc = time.UTC
	}
	cfg.Location = loc

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"ledger_base_url", cfg.LedgerBaseURL,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"audit_log_dir", cfg.AuditLogDir,
		"time_zone", cfg.Location.String())
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}
