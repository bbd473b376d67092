package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=budget port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	Environment string
	ServiceName string
	LogFile     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FinanceAPIURL      string
	FinanceTimeout     time.Duration
	AuditAPIURL        string
	NotificationAPIURL string
	WebhookTimeout     time.Duration

	// Allocation used for synthetic budget rows while Finance is unreachable.
	SyntheticBudgetAllocation decimal.Decimal

	BudgetCacheTTL    time.Duration
	ListCacheTTL      time.Duration
	DetailCacheTTL    time.Duration
	AnalyticsCacheTTL time.Duration

	DispatchWorkers      int
	DispatchQueueSize    int
	DispatchRetryBackoff time.Duration
}

func Load() *Config {
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceName: getEnv("SERVICE_NAME", "budget-request-service"),
		LogFile:     getEnv("LOG_FILE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		FinanceAPIURL:      getEnv("FINANCE_API_URL", ""),
		FinanceTimeout:     getDuration("FINANCE_TIMEOUT", 5*time.Second),
		AuditAPIURL:        getEnv("AUDIT_API_URL", ""),
		NotificationAPIURL: getEnv("NOTIFICATION_API_URL", ""),
		WebhookTimeout:     getDuration("WEBHOOK_TIMEOUT", 5*time.Second),

		SyntheticBudgetAllocation: getDecimal("SYNTHETIC_BUDGET_ALLOCATION", decimal.NewFromInt(10_000_000)),

		BudgetCacheTTL:    getDuration("BUDGET_CACHE_TTL", 5*time.Minute),
		ListCacheTTL:      getDuration("LIST_CACHE_TTL", 3*time.Minute),
		DetailCacheTTL:    getDuration("DETAIL_CACHE_TTL", 10*time.Minute),
		AnalyticsCacheTTL: getDuration("ANALYTICS_CACHE_TTL", 5*time.Minute),

		DispatchWorkers:      getInt("DISPATCH_WORKERS", 4),
		DispatchQueueSize:    getInt("DISPATCH_QUEUE_SIZE", 256),
		DispatchRetryBackoff: getDuration("DISPATCH_RETRY_BACKOFF", 500*time.Millisecond),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("[FATAL] JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("[FATAL] JWT_SECRET must be at least 32 characters")
	}
	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN is using the local default, set it for production.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS is using the local default.")
	}
	if cfg.FinanceAPIURL == "" {
		log.Println("[WARN] FINANCE_API_URL is empty, department budgets will come from the stale/synthetic fallback.")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

func getDecimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		log.Printf("[WARN] %s=%q is not a valid amount, using %s", key, v, def)
		return def
	}
	return d
}
