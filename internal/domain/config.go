package domain

import "time"

// Config holds the complete FraudLens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Scoring thresholds and the demo exchange rate
	Scoring ScoringConfig `json:"scoring"`

	// Session and batch behaviour
	Session SessionConfig `json:"session"`
	Batch   BatchConfig   `json:"batch"`

	// Component configurations
	Cache    CacheConfig    `json:"cache"`
	EventBus EventBusConfig `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
	MaxBodyBytes int64  `json:"maxBodyBytes"`
}

// ScoringConfig holds the rule thresholds.
// Zero values fall back to the defaults below.
type ScoringConfig struct {
	NGNPerUSD          float64 `json:"ngnPerUsd"`
	HighAmountNGN      float64 `json:"highAmountNgn"`
	HighAmountUSD      float64 `json:"highAmountUsd"`
	CardNotPresentUSD  float64 `json:"cardNotPresentUsd"`
	VelocityMinRepeats int     `json:"velocityMinRepeats"`
}

// SessionConfig holds interactive session settings.
type SessionConfig struct {
	TTL        time.Duration `json:"ttl"`
	MaxHistory int           `json:"maxHistory"`
}

// BatchConfig holds batch pipeline settings.
type BatchConfig struct {
	Workers int `json:"workers"`
	MaxRows int `json:"maxRows"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `json:"level"`  // debug, info, warn, error
	Format        string `json:"format"` // json, text
	IncludeCaller bool   `json:"includeCaller"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	// Endpoint is the OTLP gRPC collector address. Empty keeps spans in-process.
	Endpoint string `json:"endpoint"`
}

// Scoring defaults.
const (
	DefaultNGNPerUSD          = 1600.0
	DefaultHighAmountNGN      = 500000.0
	DefaultHighAmountUSD      = 1000.0
	DefaultCardNotPresentUSD  = 300.0
	DefaultVelocityMinRepeats = 2
)

// DefaultScoringConfig returns the demo thresholds.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		NGNPerUSD:          DefaultNGNPerUSD,
		HighAmountNGN:      DefaultHighAmountNGN,
		HighAmountUSD:      DefaultHighAmountUSD,
		CardNotPresentUSD:  DefaultCardNotPresentUSD,
		VelocityMinRepeats: DefaultVelocityMinRepeats,
	}
}

// DefaultConfig returns a single-process configuration:
// in-memory sessions and an in-process channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			MaxBodyBytes: 10 << 20,
		},
		Scoring: DefaultScoringConfig(),
		Session: SessionConfig{
			TTL:        30 * time.Minute,
			MaxHistory: 500,
		},
		Batch: BatchConfig{
			Workers: 8,
			MaxRows: 100000,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "fraudlens",
		},
	}
}
