// Package telemetry provides the public API for embedding the telemetry agent.
// This is the stable API for external consumers.
package telemetry

import (
	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/runtime"
	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

// ServiceName labels the agent's spans and default client info.
const ServiceName = runtime.ServiceName

// Agent owns the event pipeline and the version store.
// See internal/runtime.Agent for full documentation.
type Agent = runtime.Agent

// Option is a functional option for configuring an Agent.
type Option = runtime.Option

// New creates a new Agent with the given options.
// Example:
//
//	agent, err := telemetry.New(
//	    telemetry.WithFileConfig("config.yaml"),
//	    telemetry.WithSQLite("./data/versions.db"),
//	)
//	if err := agent.Start(ctx); err != nil { ... }
//	defer agent.Shutdown(ctx)
var New = runtime.New

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithMemoryStorage = runtime.WithMemoryStorage
	WithSQLite        = runtime.WithSQLite
	WithPostgres      = runtime.WithPostgres
	WithStorage       = runtime.WithStorage

	// Delivery
	WithTransport = runtime.WithTransport

	// Advanced options
	WithLogger     = runtime.WithLogger
	WithClock      = runtime.WithClock
	WithClientInfo = runtime.WithClientInfo
	WithHTTPServer = runtime.WithHTTPServer
)

// Event and version types
type (
	EventInput     = domain.EventInput
	EventType      = domain.EventType
	Outcome        = domain.Outcome
	TokenUsage     = domain.TokenUsage
	ContextUpdate  = domain.ContextUpdate
	VersionRecord  = domain.VersionRecord
	CaptureRequest = versioning.CaptureRequest
)

const (
	EventTypeUserInteraction = domain.EventTypeUserInteraction
	EventTypeAIInteraction   = domain.EventTypeAIInteraction
	EventTypeSystemAction    = domain.EventTypeSystemAction
	EventTypeError           = domain.EventTypeError

	OutcomeSuccess = domain.OutcomeSuccess
	OutcomeError   = domain.OutcomeError
)

// Errors returned by the agent
var (
	ErrNotFound         = domain.ErrNotFound
	ErrStorageExhausted = domain.ErrStorageExhausted
	ErrInvalidVersion   = domain.ErrInvalidVersion
	ErrDrainInFlight    = domain.ErrDrainInFlight
	ErrNotStarted       = runtime.ErrNotStarted
)
