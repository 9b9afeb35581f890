package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-telemetry/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-telemetry/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/memory"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/sqldb"
)

// Option is a functional option for configuring an Agent.
type Option func(*Agent) error

// WithFileConfig uses file-based configuration with hot-reload.
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(a *Agent) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration. Nothing is watched.
func WithConfig(cfg *config.Config) Option {
	return func(a *Agent) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		a.config = staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *Agent) error {
		a.config = provider
		return nil
	}
}

// WithMemoryStorage keeps version history in process memory. Each Start
// begins with an empty history.
func WithMemoryStorage() Option {
	return func(a *Agent) error {
		a.sharedStorage = nil
		a.openStorage = func() (ports.VersionStorage, error) {
			return memory.New(), nil
		}
		return nil
	}
}

// WithSQLite stores version history in a SQLite file, opened by Start.
func WithSQLite(path string) Option {
	return func(a *Agent) error {
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty")
		}
		a.sharedStorage = nil
		a.openStorage = func() (ports.VersionStorage, error) {
			store, err := sqlite.NewProvider(path)
			if err != nil {
				return nil, fmt.Errorf("create sqlite storage: %w", err)
			}
			return store, nil
		}
		return nil
	}
}

// WithPostgres stores version history in PostgreSQL, opened by Start.
func WithPostgres(dsn string) Option {
	return func(a *Agent) error {
		if dsn == "" {
			return fmt.Errorf("postgres dsn cannot be empty")
		}
		a.sharedStorage = nil
		a.openStorage = func() (ports.VersionStorage, error) {
			store, err := sqldb.NewPostgres(dsn)
			if err != nil {
				return nil, fmt.Errorf("create postgres storage: %w", err)
			}
			return store, nil
		}
		return nil
	}
}

// WithStorage sets a custom version storage. The caller owns it: Shutdown
// does not close it.
func WithStorage(storage ports.VersionStorage) Option {
	return func(a *Agent) error {
		a.sharedStorage = storage
		a.openStorage = nil
		return nil
	}
}

// WithTransport sets a custom collector transport instead of the configured
// one. The caller owns it: Shutdown waits for outstanding shutdown sends but
// does not close it.
func WithTransport(transport ports.Transport) Option {
	return func(a *Agent) error {
		a.sharedTransport = transport
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithClock sets the time source for event and version timestamps.
func WithClock(clock func() time.Time) Option {
	return func(a *Agent) error {
		a.clock = clock
		return nil
	}
}

// WithClientInfo names the host application in the detected client info.
func WithClientInfo(name, version string) Option {
	return func(a *Agent) error {
		a.clientName = name
		a.clientVersion = version
		return nil
	}
}

// WithHTTPServer serves the host API on the configured port.
func WithHTTPServer() Option {
	return func(a *Agent) error {
		a.serve = true
		return nil
	}
}

// staticConfig is a ConfigProvider that never changes.
type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(context.Context) (*config.Config, error) { return s.cfg, nil }

func (s staticConfig) Watch(context.Context, func(*config.Config)) error { return nil }

func (s staticConfig) Close() error { return nil }
