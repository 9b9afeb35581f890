package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %v, want %v", cfg.Server.Port, DefaultPort)
	}
	if cfg.Pipeline.BatchSize != 10 {
		t.Errorf("batch size = %v, want 10", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.MaxQueueSize != 100 {
		t.Errorf("max queue size = %v, want 100", cfg.Pipeline.MaxQueueSize)
	}
	if cfg.Pipeline.BatchInterval() != 5*time.Second {
		t.Errorf("batch interval = %v, want 5s", cfg.Pipeline.BatchInterval())
	}
	if cfg.Versions.MaxPerStream != 20 {
		t.Errorf("max versions = %v, want 20", cfg.Versions.MaxPerStream)
	}
	if cfg.Pipeline.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint = %q, want %q", cfg.Pipeline.Endpoint, DefaultEndpoint)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %q, want memory", cfg.Storage.Type)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
pipeline:
  endpoint: https://collector.example.com/v1/events
  batch_size: 25
transport:
  headers:
    Authorization: "Bearer ${TEST_COLLECTOR_TOKEN}"
context:
  app_version: "2.0.0"
  attributes:
    tier: pro
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("TEST_COLLECTOR_TOKEN", "secret")
	t.Setenv("TELEMETRY_PIPELINE__MAX_QUEUE_SIZE", "300")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.Endpoint != "https://collector.example.com/v1/events" {
		t.Errorf("endpoint = %q", cfg.Pipeline.Endpoint)
	}
	if cfg.Pipeline.BatchSize != 25 {
		t.Errorf("batch size = %v, want 25", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.MaxQueueSize != 300 {
		t.Errorf("max queue size = %v, want 300", cfg.Pipeline.MaxQueueSize)
	}
	if got := cfg.Transport.Headers["Authorization"]; got != "Bearer secret" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer secret")
	}
	if cfg.Context.AppVersion != "2.0.0" {
		t.Errorf("app version = %q, want 2.0.0", cfg.Context.AppVersion)
	}
	if cfg.Context.Attributes["tier"] != "pro" {
		t.Errorf("tier attribute = %v, want pro", cfg.Context.Attributes["tier"])
	}
}

func TestLoad_NonPositiveValuesFallBack(t *testing.T) {
	t.Setenv("TELEMETRY_PIPELINE__BATCH_SIZE", "0")
	t.Setenv("TELEMETRY_VERSIONS__MAX_PER_STREAM", "-1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.BatchSize != DefaultBatchSize {
		t.Errorf("batch size = %v, want %v", cfg.Pipeline.BatchSize, DefaultBatchSize)
	}
	if cfg.Versions.MaxPerStream != DefaultMaxVersions {
		t.Errorf("max versions = %v, want %v", cfg.Versions.MaxPerStream, DefaultMaxVersions)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple substitution", input: "${TEST_VAR}", want: "test-value"},
		{name: "substitution in string", input: "prefix-${TEST_VAR}-suffix", want: "prefix-test-value-suffix"},
		{name: "no substitution", input: "plain-string", want: "plain-string"},
		{name: "undefined var", input: "${UNDEFINED_VAR_FOR_TEST}", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
