// Package config loads FraudLens configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Prefix is prepended to every environment variable name.
const Prefix = "FRAUDLENS_"

// LoadEnv loads variables from the given .env files, or ./.env when none
// are named. A missing file is not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}

// Load returns domain.DefaultConfig overridden by FRAUDLENS_* variables.
func Load() (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	cfg.Server.Host = GetEnv(Prefix+"HOST", cfg.Server.Host)
	cfg.Server.Port = GetIntEnv(Prefix+"PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = GetIntEnv(Prefix+"READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = GetIntEnv(Prefix+"WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.MaxBodyBytes = int64(GetIntEnv(Prefix+"MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Scoring.NGNPerUSD = GetFloatEnv(Prefix+"NGN_PER_USD", cfg.Scoring.NGNPerUSD)
	cfg.Scoring.HighAmountNGN = GetFloatEnv(Prefix+"HIGH_AMOUNT_NGN", cfg.Scoring.HighAmountNGN)
	cfg.Scoring.HighAmountUSD = GetFloatEnv(Prefix+"HIGH_AMOUNT_USD", cfg.Scoring.HighAmountUSD)
	cfg.Scoring.CardNotPresentUSD = GetFloatEnv(Prefix+"CARD_NOT_PRESENT_USD", cfg.Scoring.CardNotPresentUSD)
	cfg.Scoring.VelocityMinRepeats = GetIntEnv(Prefix+"VELOCITY_MIN_REPEATS", cfg.Scoring.VelocityMinRepeats)

	cfg.Session.TTL = GetDurationEnv(Prefix+"SESSION_TTL", cfg.Session.TTL)
	cfg.Session.MaxHistory = GetIntEnv(Prefix+"MAX_HISTORY", cfg.Session.MaxHistory)

	cfg.Batch.Workers = GetIntEnv(Prefix+"BATCH_WORKERS", cfg.Batch.Workers)
	cfg.Batch.MaxRows = GetIntEnv(Prefix+"BATCH_MAX_ROWS", cfg.Batch.MaxRows)

	cfg.Cache.Type = GetEnv(Prefix+"CACHE", cfg.Cache.Type)
	cfg.Cache.LocalMaxSize = GetIntEnv(Prefix+"CACHE_SIZE", cfg.Cache.LocalMaxSize)
	cfg.Cache.LocalTTL = GetDurationEnv(Prefix+"CACHE_LOCAL_TTL", cfg.Cache.LocalTTL)
	cfg.Cache.RedisAddr = GetEnv(Prefix+"REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = GetEnv(Prefix+"REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = GetIntEnv(Prefix+"REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = GetBoolEnv(Prefix+"TWO_PHASE", cfg.Cache.EnableTwoPhase)

	cfg.EventBus.Type = GetEnv(Prefix+"BUS", cfg.EventBus.Type)
	cfg.EventBus.ChannelBufferSize = GetIntEnv(Prefix+"BUS_BUFFER", cfg.EventBus.ChannelBufferSize)
	cfg.EventBus.NATSUrl = GetEnv(Prefix+"NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = GetEnv(Prefix+"NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Logging.Level = GetEnv(Prefix+"LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = GetEnv(Prefix+"LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.IncludeCaller = GetBoolEnv(Prefix+"LOG_CALLER", cfg.Logging.IncludeCaller)

	cfg.Tracing.Enabled = GetBoolEnv(Prefix+"TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = GetEnv(Prefix+"SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.Endpoint = GetEnv(Prefix+"OTLP_ENDPOINT", cfg.Tracing.Endpoint)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func Validate(cfg *domain.Config) error {
	var problems []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", cfg.Server.Port))
	}
	if cfg.Scoring.NGNPerUSD <= 0 {
		problems = append(problems, "NGN per USD rate must be positive")
	}
	if cfg.Batch.Workers <= 0 {
		problems = append(problems, "batch workers must be positive")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		problems = append(problems, "max body bytes must be positive")
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("unsupported cache type %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "channel", "nats", "none":
	default:
		problems = append(problems, fmt.Sprintf("unsupported event bus type %q", cfg.EventBus.Type))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetFloatEnv returns a float environment variable or a default value.
func GetFloatEnv(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := domain.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable ("30m", "1h") or a
// default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}
