package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Upstream market data
	Polygon PolygonConfig

	// Pipeline policy
	Resolver ResolverConfig
	Selector SelectorConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PolygonConfig holds Polygon.io API configuration and the rate policy
// applied to it. The free tier allows 5 calls/min; the defaults keep a
// sequential run safely under that budget.
type PolygonConfig struct {
	APIKey  string
	BaseURL string

	// CallInterval is the minimum spacing between consecutive API calls.
	CallInterval time.Duration
	// RateLimitCooldown is how long to wait after a 429 before retrying
	// the identical request.
	RateLimitCooldown time.Duration
	// MaxRateLimitRetries bounds 429 retries for a single request.
	MaxRateLimitRetries int
	// Timeout applies to each individual request.
	Timeout time.Duration
}

// ResolverConfig holds trading-day resolution policy.
type ResolverConfig struct {
	// Benchmark is always kept alongside the universe and must exist for
	// every resolved date.
	Benchmark string
	// MinFullDayRows is the number of distinct tickers that must be cached
	// for a date before it counts as a complete trading day.
	MinFullDayRows int
	// MaxBacktrack bounds how many earlier days a date resolution may try.
	MaxBacktrack int
}

// SelectorConfig holds option-contract scoring policy.
type SelectorConfig struct {
	// StrikeWeight multiplies the strike-distance term of the contract
	// score. Moneyness matters more than a few weeks of calendar drift.
	StrikeWeight float64
	// ContractLimit is the result cap requested from the reference
	// endpoint; large enough that the best candidate never falls off a page.
	ContractLimit int
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "momentum"),
			User:            getEnv("DB_USER", "momentum"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Polygon: PolygonConfig{
			APIKey:              getEnv("POLYGON_API_KEY", getEnv("POLYGON_KEY", "")),
			BaseURL:             getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
			CallInterval:        getEnvAsDuration("POLYGON_CALL_INTERVAL", "13s"),
			RateLimitCooldown:   getEnvAsDuration("POLYGON_RATE_LIMIT_COOLDOWN", "65s"),
			MaxRateLimitRetries: getEnvAsInt("POLYGON_MAX_RATE_LIMIT_RETRIES", 3),
			Timeout:             getEnvAsDuration("POLYGON_TIMEOUT", "30s"),
		},

		Resolver: ResolverConfig{
			Benchmark:      getEnv("BENCHMARK_TICKER", "VOO"),
			MinFullDayRows: getEnvAsInt("RESOLVER_MIN_FULL_DAY_ROWS", 800),
			MaxBacktrack:   getEnvAsInt("RESOLVER_MAX_BACKTRACK", 5),
		},

		Selector: SelectorConfig{
			StrikeWeight:  getEnvAsFloat("SELECTOR_STRIKE_WEIGHT", 5.0),
			ContractLimit: getEnvAsInt("SELECTOR_CONTRACT_LIMIT", 1000),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Resolver.MaxBacktrack < 0 {
		return fmt.Errorf("RESOLVER_MAX_BACKTRACK must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
