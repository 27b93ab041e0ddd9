package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"finscope/internal/storage"
)

type Config struct {
	// HTTP Server
	Port            string
	ShutdownTimeout time.Duration
	RateLimitRPM    int
	RateLimitBurst  int

	// Worker health and metrics listener
	WorkerPort string

	// Database
	DBDir         string
	DBFile        string
	DBBusyTimeout time.Duration

	// Logging
	LogLevel string

	// AMQP ingestion queue (optional for the server, required by the worker)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	AMQPPrefetch int

	// Spend summaries
	DefaultSummaryDays int
	SummaryCacheTTL    time.Duration
	SummaryCacheSize   int
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8000"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		RateLimitRPM:    getEnvInt("RATE_LIMIT_RPM", 600),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 100),

		WorkerPort: getEnv("WORKER_PORT", "9090"),

		DBDir:         getEnv("DB_DIR", "./data"),
		DBFile:        getEnv("DB_FILE", "finscope.db"),
		DBBusyTimeout: getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finscope"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ingest"),
		AMQPPrefetch: getEnvInt("AMQP_PREFETCH", 10),

		DefaultSummaryDays: getEnvInt("DEFAULT_SUMMARY_DAYS", 30),
		SummaryCacheTTL:    getEnvDuration("SUMMARY_CACHE_TTL", 0),
		SummaryCacheSize:   getEnvInt("SUMMARY_CACHE_SIZE", 64),
	}
}

// Storage returns the catalog location handed to storage.Open.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Dir:         c.DBDir,
		File:        c.DBFile,
		BusyTimeout: c.DBBusyTimeout,
	}
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.WorkerPort != "" {
		if port, err := strconv.Atoi(c.WorkerPort); err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid worker port '%s': must be between 1 and 65535", c.WorkerPort))
		}
	}
	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		errors = append(errors, "rate limit settings must not be negative")
	}

	if strings.TrimSpace(c.DBDir) == "" {
		errors = append(errors, "database directory cannot be empty")
	}
	if strings.TrimSpace(c.DBFile) == "" {
		errors = append(errors, "database file name cannot be empty")
	} else if strings.ContainsAny(c.DBFile, `/\?`) {
		errors = append(errors, fmt.Sprintf("invalid database file name '%s': must be a plain file name", c.DBFile))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPPrefetch < 1 {
			errors = append(errors, fmt.Sprintf("invalid AMQP prefetch %d: must be at least 1", c.AMQPPrefetch))
		}
	}

	if c.DefaultSummaryDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid default summary days %d: must be at least 1", c.DefaultSummaryDays))
	}
	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must not be negative", c.SummaryCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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
