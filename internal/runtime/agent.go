// Package runtime provides the Agent, which assembles the telemetry pipeline
// and the version store from configuration and manages their lifecycle.
// An Agent can be embedded in a host application or run standalone.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-telemetry/internal/api/host"
	"github.com/tjfontaine/polyglot-telemetry/internal/clientinfo"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/metrics"
	"github.com/tjfontaine/polyglot-telemetry/internal/pipeline"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	"github.com/tjfontaine/polyglot-telemetry/internal/server"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage"
	"github.com/tjfontaine/polyglot-telemetry/internal/tokens"
	"github.com/tjfontaine/polyglot-telemetry/internal/transport"
	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

// ServiceName labels the agent's server spans and detected client info.
const ServiceName = "telemetryd"

// ErrNotStarted is returned by operations that need a started agent.
var ErrNotStarted = errors.New("agent not started")

type Agent struct {
	// Dependencies (injected via options)
	config          ports.ConfigProvider
	openStorage     func() (ports.VersionStorage, error)
	sharedStorage   ports.VersionStorage
	sharedTransport ports.Transport
	logger          *slog.Logger
	clock           func() time.Time

	clientName    string
	clientVersion string
	serve         bool

	// Built by Start, reset by Shutdown
	cfg           *config.Config
	storage       ports.VersionStorage
	transport     ports.Transport
	ownsStorage   bool
	ownsTransport bool
	contexts      *domain.ContextHolder
	pipeline      *pipeline.Pipeline
	versions      *versioning.Store
	server        *server.Server

	// applied is the context section last pushed into the live context.
	applyMu sync.Mutex
	applied config.ContextConfig

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates an Agent with the given options. Without a config option the
// agent reads TELEMETRY_ environment variables over the defaults.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{
		logger:     slog.Default(),
		clientName: ServiceName,
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.config == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("load default config: %w", err)
		}
		a.config = staticConfig{cfg: cfg}
	}

	return a, nil
}

// Start loads the configuration, builds the pipeline and the version store,
// optionally starts the host API and begins watching for config changes.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pipeline != nil {
		return errors.New("agent already started")
	}

	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := a.openDependencies(cfg); err != nil {
		a.releaseDependencies()
		return err
	}
	a.cfg = cfg

	initial := domain.GlobalContext{
		SessionID:  uuid.NewString(),
		ClientInfo: clientinfo.Detect(ctx, a.clientName, a.clientVersion),
	}
	a.contexts = domain.NewContextHolder(initial)
	a.applyMu.Lock()
	a.contexts.Update(contextUpdate(config.ContextConfig{}, cfg.Context))
	a.applied = cfg.Context
	a.applyMu.Unlock()

	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithTokenCounter(tokens.NewRegistry()),
	}
	verOpts := []versioning.Option{
		versioning.WithMaxVersions(cfg.Versions.MaxPerStream),
		versioning.WithLogger(a.logger),
	}
	if a.clock != nil {
		pipeOpts = append(pipeOpts, pipeline.WithClock(a.clock))
		verOpts = append(verOpts, versioning.WithClock(a.clock))
	}

	a.pipeline = pipeline.New(a.transport, a.contexts, pipeline.Config{
		BatchSize:     cfg.Pipeline.BatchSize,
		BatchInterval: cfg.Pipeline.BatchInterval(),
		MaxQueueSize:  cfg.Pipeline.MaxQueueSize,
	}, pipeOpts...)
	a.versions = versioning.New(a.storage, a.pipeline, a.contexts, verOpts...)

	a.ctx, a.cancel = context.WithCancel(context.Background())

	if a.serve {
		a.startServer(cfg)
	}

	if err := a.config.Watch(a.ctx, a.applyConfig); err != nil {
		a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	a.logger.Info("telemetry agent started",
		slog.String("session_id", initial.SessionID),
		slog.String("transport", cfg.Transport.Type),
		slog.String("storage", cfg.Storage.Type),
		slog.Int("batch_size", cfg.Pipeline.BatchSize),
		slog.Int("max_versions", a.versions.MaxVersions()))

	return nil
}

// openDependencies resolves storage and transport. Instances the agent opens
// itself are closed by Shutdown; injected ones are left to the caller.
func (a *Agent) openDependencies(cfg *config.Config) error {
	var err error
	switch {
	case a.sharedStorage != nil:
		a.storage = a.sharedStorage
	case a.openStorage != nil:
		if a.storage, err = a.openStorage(); err != nil {
			return err
		}
		a.ownsStorage = true
	default:
		if a.storage, err = storage.Open(cfg.Storage); err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.ownsStorage = true
	}

	if a.sharedTransport != nil {
		a.transport = a.sharedTransport
		return nil
	}
	if a.transport, err = transport.Open(cfg, a.logger); err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	a.ownsTransport = true
	return nil
}

// releaseDependencies closes what openDependencies opened and clears the
// resolved instances so a later Start opens fresh ones.
func (a *Agent) releaseDependencies() error {
	var errs []error
	if c, ok := a.transport.(io.Closer); ok && a.ownsTransport {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if a.storage != nil && a.ownsStorage {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	a.storage, a.transport = nil, nil
	a.ownsStorage, a.ownsTransport = false, false
	return errors.Join(errs...)
}

func (a *Agent) startServer(cfg *config.Config) {
	var hostOpts []host.Option
	if cfg.Metrics.Enabled {
		hostOpts = append(hostOpts, host.WithMetricsHandler(metrics.Handler()))
	}

	a.server = server.New(ServiceName, cfg.Server.Port, a.logger)
	a.server.Router.Mount("/", host.NewServer(a.pipeline, a.versions, hostOpts...))

	srv := a.server
	go func() {
		if err := srv.Start(); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
}

// applyConfig re-applies the context section of a reloaded configuration.
// Pipeline and storage settings stay fixed until the agent restarts.
func (a *Agent) applyConfig(cfg *config.Config) {
	p := a.Pipeline()
	if p == nil {
		return
	}

	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	p.UpdateGlobalContext(contextUpdate(a.applied, cfg.Context))
	a.applied = cfg.Context
	a.logger.Info("global context reloaded from config")
}

// contextUpdate carries the changes from prev to next. A field cleared in
// next is sent as an empty string and a removed attribute as a nil value,
// which deletes it. Fields equal in both are left out so values set by the
// host at runtime survive unrelated reloads.
func contextUpdate(prev, next config.ContextConfig) domain.ContextUpdate {
	var u domain.ContextUpdate
	if next.UserID != prev.UserID {
		u.UserID = &next.UserID
	}
	if next.AppVersion != prev.AppVersion {
		u.AppVersion = &next.AppVersion
	}
	if next.CurrentView != prev.CurrentView {
		u.CurrentView = &next.CurrentView
	}
	if len(next.Attributes) > 0 || len(prev.Attributes) > 0 {
		u.ExtraAttributes = make(map[string]any, len(next.Attributes)+len(prev.Attributes))
		for k := range prev.Attributes {
			if _, ok := next.Attributes[k]; !ok {
				u.ExtraAttributes[k] = nil
			}
		}
		for k, v := range next.Attributes {
			u.ExtraAttributes[k] = v
		}
	}
	return u
}

// Pipeline returns the event pipeline, or nil before Start.
func (a *Agent) Pipeline() *pipeline.Pipeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipeline
}

// Versions returns the version store, or nil before Start.
func (a *Agent) Versions() *versioning.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.versions
}

// Config returns the configuration loaded by Start.
func (a *Agent) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// RecordEvent records in on the pipeline. Events recorded before Start are dropped.
func (a *Agent) RecordEvent(in domain.EventInput) {
	if p := a.Pipeline(); p != nil {
		p.RecordEvent(in)
		return
	}
	metrics.IncDropped("not_started")
}

// UpdateGlobalContext merges u into the live context.
func (a *Agent) UpdateGlobalContext(u domain.ContextUpdate) {
	if p := a.Pipeline(); p != nil {
		p.UpdateGlobalContext(u)
	}
}

// CaptureVersion captures a snapshot through the version store.
func (a *Agent) CaptureVersion(ctx context.Context, req versioning.CaptureRequest) (*domain.VersionRecord, error) {
	v := a.Versions()
	if v == nil {
		return nil, ErrNotStarted
	}
	return v.CaptureVersion(ctx, req)
}

// Shutdown stops the server and the config watch, closes the pipeline
// (which flushes on shutdown), gives the final flush until ctx is done and
// closes the transport and the storage it opened. The agent can be started
// again afterwards.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pipeline == nil {
		return nil
	}

	a.logger.Info("shutting down telemetry agent")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}

	a.cancel()
	if err := a.config.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close config: %w", err))
	}

	if err := a.pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pipeline: %w", err))
	}
	// The final flush must finish before the transport goes away.
	if err := a.pipeline.Wait(ctx); err != nil {
		a.logger.Warn("shutdown flush still in flight", slog.String("error", err.Error()))
	}
	if w, ok := a.transport.(interface{ Wait(context.Context) error }); ok {
		if err := w.Wait(ctx); err != nil {
			a.logger.Warn("beacons still in flight at shutdown", slog.String("error", err.Error()))
		}
	}
	if err := a.releaseDependencies(); err != nil {
		errs = append(errs, err)
	}

	a.pipeline = nil
	a.versions = nil
	a.server = nil
	a.contexts = nil
	a.cfg = nil
	a.ctx, a.cancel = nil, nil
	a.applyMu.Lock()
	a.applied = config.ContextConfig{}
	a.applyMu.Unlock()

	return errors.Join(errs...)
}
