package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults applied when a key is not set by the file or the environment.
const (
	DefaultPort              = 8080
	DefaultEndpoint          = "http://localhost:4318/v1/events"
	DefaultBatchSize         = 10
	DefaultBatchIntervalMs   = 5000
	DefaultMaxQueueSize      = 100
	DefaultBeaconTimeoutMs   = 5000
	DefaultMaxVersions       = 20
	DefaultStorageType       = "memory"
	DefaultTransportType     = "http"
	DefaultNATSSubject       = "telemetry.events"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
	EnvPrefix                = "TELEMETRY_"
	DefaultConfigFile        = "config.yaml"
	DefaultSQLitePath        = "./data/versions.db"
	DefaultCollectorCapacity = 1000
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Transport TransportConfig `koanf:"transport"`
	Versions  VersionsConfig  `koanf:"versions"`
	Storage   StorageConfig   `koanf:"storage"`
	Context   ContextConfig   `koanf:"context"`
	Log       LogConfig       `koanf:"log"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Collector CollectorConfig `koanf:"collector"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// PipelineConfig is fixed for the lifetime of a pipeline.
type PipelineConfig struct {
	Endpoint        string `koanf:"endpoint"`
	BatchSize       int    `koanf:"batch_size"`
	BatchIntervalMs int    `koanf:"batch_interval_ms"`
	MaxQueueSize    int    `koanf:"max_queue_size"`
}

// BatchInterval returns the timer cadence as a duration.
func (c PipelineConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMs) * time.Millisecond
}

type TransportConfig struct {
	Type                 string            `koanf:"type"` // http, nats, kafka
	Headers              map[string]string `koanf:"headers"`
	BlockPrivateNetworks bool              `koanf:"block_private_networks"`
	BeaconTimeoutMs      int               `koanf:"beacon_timeout_ms"`
	NATS                 NATSConfig        `koanf:"nats"`
	Kafka                KafkaConfig       `koanf:"kafka"`
}

type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

type KafkaConfig struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

type VersionsConfig struct {
	MaxPerStream int `koanf:"max_per_stream"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, postgres
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
	// MemoryQuotaBytes bounds the in-memory store; 0 means unbounded.
	MemoryQuotaBytes int `koanf:"memory_quota_bytes"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// ContextConfig seeds the global context. It is re-applied on hot reload.
type ContextConfig struct {
	UserID      string         `koanf:"user_id"`
	AppVersion  string         `koanf:"app_version"`
	CurrentView string         `koanf:"current_view"`
	Attributes  map[string]any `koanf:"attributes"`
}

type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	File       string `koanf:"file"`   // rotate into this file instead of stdout
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// CollectorConfig configures the development collector.
type CollectorConfig struct {
	Capacity int     `koanf:"capacity"`
	FailRate float64 `koanf:"fail_rate"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (missing file is fine), then TELEMETRY_ environment
// variables, then fills defaults for anything still unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":                 DefaultPort,
		"pipeline.endpoint":           DefaultEndpoint,
		"pipeline.batch_size":         DefaultBatchSize,
		"pipeline.batch_interval_ms":  DefaultBatchIntervalMs,
		"pipeline.max_queue_size":     DefaultMaxQueueSize,
		"transport.type":              DefaultTransportType,
		"transport.beacon_timeout_ms": DefaultBeaconTimeoutMs,
		"transport.nats.subject":      DefaultNATSSubject,
		"versions.max_per_stream":     DefaultMaxVersions,
		"storage.type":                DefaultStorageType,
		"storage.sqlite.path":         DefaultSQLitePath,
		"log.level":                   DefaultLogLevel,
		"log.format":                  DefaultLogFormat,
		"collector.capacity":          DefaultCollectorCapacity,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()

	// Substitute environment variables in collector headers
	for name, value := range cfg.Transport.Headers {
		cfg.Transport.Headers[name] = substituteEnvVars(value)
	}
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)

	return &cfg, nil
}

// normalize replaces non-positive numeric settings with their defaults so
// that a zero or partial configuration keeps the pipeline operational.
func (c *Config) normalize() {
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = DefaultBatchSize
	}
	if c.Pipeline.BatchIntervalMs <= 0 {
		c.Pipeline.BatchIntervalMs = DefaultBatchIntervalMs
	}
	if c.Pipeline.MaxQueueSize <= 0 {
		c.Pipeline.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.Pipeline.Endpoint == "" {
		c.Pipeline.Endpoint = DefaultEndpoint
	}
	if c.Versions.MaxPerStream <= 0 {
		c.Versions.MaxPerStream = DefaultMaxVersions
	}
	if c.Transport.BeaconTimeoutMs <= 0 {
		c.Transport.BeaconTimeoutMs = DefaultBeaconTimeoutMs
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
