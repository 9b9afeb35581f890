// Package collector is a development endpoint that accepts event batches the
// way a production collector would and keeps the most recent ones in memory.
package collector

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/server"
)

// DefaultCapacity is the number of events retained when none is configured.
const DefaultCapacity = 1000

const maxBatchBytes = 16 << 20

// Option configures a Collector.
type Option func(*Collector)

// WithCapacity bounds the number of retained events.
func WithCapacity(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithFailRate makes the collector reject roughly this fraction of batches
// with 503 so that clients exercise their retry path.
func WithFailRate(rate float64) Option {
	return func(c *Collector) {
		c.failRate = rate
	}
}

// WithLogger sets the logger for accepted and rejected batches.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRandom replaces the source used for the fail rate.
func WithRandom(random func() float64) Option {
	return func(c *Collector) {
		if random != nil {
			c.random = random
		}
	}
}

type Collector struct {
	router   *chi.Mux
	capacity int
	failRate float64
	random   func() float64
	logger   *slog.Logger

	mu       sync.Mutex
	events   []*domain.InteractionEvent
	next     int
	received int
	rejected int
}

func New(opts ...Option) *Collector {
	c := &Collector{
		router:   chi.NewRouter(),
		capacity: DefaultCapacity,
		random:   rand.Float64,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "collector"))

	c.router.Post("/v1/events", c.handleIngest)
	c.router.Get("/v1/events", c.handleList)
	return c
}

func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

func (c *Collector) handleIngest(w http.ResponseWriter, r *http.Request) {
	var batch []*domain.InteractionEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&batch); err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "invalid batch: "+err.Error(), http.StatusBadRequest)
		return
	}

	if c.failRate > 0 && c.random() < c.failRate {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		c.logger.Warn("rejecting batch", slog.Int("batch_size", len(batch)))
		http.Error(w, "collector unavailable", http.StatusServiceUnavailable)
		return
	}

	c.store(batch)
	for _, evt := range batch {
		c.logger.Info("event received",
			slog.String("event_id", evt.ID),
			slog.String("event_type", string(evt.EventType)),
			slog.String("interaction_type", evt.InteractionType),
			slog.String("session_id", evt.SessionID))
	}
	w.WriteHeader(http.StatusOK)
}

// ListResponse is the response for listing retained events
type ListResponse struct {
	Received int                        `json:"received"`
	Rejected int                        `json:"rejected"`
	Events   []*domain.InteractionEvent `json:"events"`
}

func (c *Collector) handleList(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	resp := ListResponse{
		Received: c.received,
		Rejected: c.rejected,
		Events:   c.snapshot(),
	}
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Events returns the retained events, oldest first.
func (c *Collector) Events() []*domain.InteractionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Collector) store(batch []*domain.InteractionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, evt := range batch {
		c.received++
		if len(c.events) < c.capacity {
			c.events = append(c.events, evt)
			continue
		}
		c.events[c.next] = evt
		c.next = (c.next + 1) % c.capacity
	}
}

// snapshot must be called with mu held.
func (c *Collector) snapshot() []*domain.InteractionEvent {
	out := make([]*domain.InteractionEvent, 0, len(c.events))
	out = append(out, c.events[c.next:]...)
	out = append(out, c.events[:c.next]...)
	return out
}
