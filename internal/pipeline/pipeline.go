package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/metrics"
)

const tracerName = "github.com/tjfontaine/polyglot-telemetry/internal/pipeline"

// Config is fixed for the lifetime of a pipeline.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	MaxQueueSize  int
}

// DefaultConfig returns the zero-configuration settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     10,
		BatchInterval: 5 * time.Second,
		MaxQueueSize:  100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = def.BatchInterval
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	return c
}

// TokenCounter estimates token usage for AI interactions that did not report it.
type TokenCounter interface {
	EstimateUsage(model, input, output string) *domain.TokenUsage
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithIDGenerator sets the event id generator.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithTokenCounter enables token usage estimation during enrichment.
func WithTokenCounter(counter TokenCounter) Option {
	return func(p *Pipeline) {
		p.tokens = counter
	}
}

// Pipeline buffers enriched events and drains them to a transport.
type Pipeline struct {
	cfg       Config
	transport ports.Transport
	contexts  *domain.ContextHolder
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	tokens    TokenCounter
	tracer    trace.Tracer

	mu     sync.Mutex
	queue  []*domain.InteractionEvent
	closed bool

	inFlight atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	// detached tracks shutdown requests sent without a beacon.
	detached sync.WaitGroup
}

var _ ports.EventRecorder = (*Pipeline)(nil)

// New creates a pipeline and arms its recurring timer.
// contexts may be nil, in which case the pipeline owns an empty context.
func New(transport ports.Transport, contexts *domain.ContextHolder, cfg Config, opts ...Option) *Pipeline {
	if contexts == nil {
		contexts = domain.NewContextHolder(domain.GlobalContext{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:       cfg.withDefaults(),
		transport: transport,
		contexts:  contexts,
		logger:    slog.Default(),
		clock:     time.Now,
		newID:     NewEventID,
		tracer:    otel.Tracer(tracerName),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "pipeline"))

	p.wg.Add(1)
	go p.run()

	return p
}

// NewEventID returns a unique event id of the form evt_<32 hex>.
func NewEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// RecordEvent enriches in and appends it to the queue. It never blocks on I/O
// and never fails: when the queue is full the new event is dropped and logged.
func (p *Pipeline) RecordEvent(in domain.EventInput) {
	evt := p.enrich(in)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.IncDropped("closed")
		p.logger.Debug("pipeline closed, dropping event", slog.String("event_id", evt.ID))
		return
	}
	if len(p.queue) >= p.cfg.MaxQueueSize {
		n := len(p.queue)
		p.mu.Unlock()
		metrics.IncDropped("overflow")
		p.logger.Warn("event queue full, dropping event",
			slog.String("event_id", evt.ID),
			slog.String("interaction_type", evt.InteractionType),
			slog.Int("queue_length", n),
			slog.Int("max_queue_size", p.cfg.MaxQueueSize))
		return
	}
	p.queue = append(p.queue, evt)
	n := len(p.queue)
	trigger := n >= p.cfg.BatchSize
	if trigger {
		p.wg.Add(1)
	}
	p.mu.Unlock()

	metrics.IncRecorded()
	metrics.SetQueueLength(n)

	if trigger {
		go func() {
			defer p.wg.Done()
			p.drainAndLog(p.ctx)
		}()
	}
}

// UpdateGlobalContext merges u into the live context. Only events created
// afterwards observe the change.
func (p *Pipeline) UpdateGlobalContext(u domain.ContextUpdate) {
	p.contexts.Update(u)
}

// Len returns the number of queued events.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Flush drains the queue now and reports the outcome. It returns
// domain.ErrDrainInFlight when another drain is running.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return domain.ErrPipelineClosed
	}
	return p.drain(ctx)
}

// FlushOnShutdown hands the remaining queue to the transport without waiting
// for the outcome. It prefers the transport's beacon primitive and falls back
// to a detached ordinary request, which Wait can await. The attempt is not
// retried.
func (p *Pipeline) FlushOnShutdown() {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	metrics.SetQueueLength(0)

	if b, ok := p.transport.(ports.Beaconer); ok && b.Beacon(batch) {
		metrics.IncShutdownFlush("beacon")
		p.logger.Debug("shutdown flush handed to beacon", slog.Int("batch_size", len(batch)))
		return
	}

	metrics.IncShutdownFlush("request")
	p.detached.Add(1)
	go func() {
		defer p.detached.Done()
		if err := p.transport.Send(context.Background(), batch); err != nil {
			p.logger.Warn("shutdown flush failed",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until shutdown requests started by FlushOnShutdown have
// returned or ctx is done. Hosts call it before tearing down the transport.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the timer, cancels in-flight drains (their batches are
// re-queued), waits for them to return and then flushes on shutdown.
// Events recorded after Close are dropped.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		p.wg.Wait()
		p.FlushOnShutdown()
	})
	return nil
}

// run owns the single recurring timer. It re-arms only after a tick's drain
// has returned, so exactly one timer is pending at any time.
func (p *Pipeline) run() {
	defer p.wg.Done()

	timer := time.NewTimer(p.cfg.BatchInterval)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
			if p.Len() > 0 {
				p.drainAndLog(p.ctx)
			}
			timer.Reset(p.cfg.BatchInterval)
		}
	}
}

func (p *Pipeline) drainAndLog(ctx context.Context) {
	err := p.drain(ctx)
	if err != nil && !errors.Is(err, domain.ErrDrainInFlight) {
		p.logger.Debug("drain attempt failed", slog.String("error", err.Error()))
	}
}

// drain detaches the queue, sends it, and re-queues it at the front on failure.
func (p *Pipeline) drain(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return domain.ErrDrainInFlight
	}
	defer p.inFlight.Store(false)

	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	metrics.SetQueueLength(0)

	ctx, span := p.tracer.Start(ctx, "pipeline.drain",
		trace.WithAttributes(attribute.Int("telemetry.batch_size", len(batch))))
	defer span.End()

	start := time.Now()
	if err := p.transport.Send(ctx, batch); err != nil {
		p.mu.Lock()
		requeued := make([]*domain.InteractionEvent, 0, len(batch)+len(p.queue))
		requeued = append(requeued, batch...)
		requeued = append(requeued, p.queue...)
		p.queue = requeued
		n := len(p.queue)
		p.mu.Unlock()

		metrics.SetQueueLength(n)
		metrics.ObserveDrain("failure", len(batch))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("drain failed, batch re-queued",
			slog.Int("batch_size", len(batch)),
			slog.Int("queue_length", n),
			slog.String("error", err.Error()))
		return fmt.Errorf("send batch: %w", err)
	}

	metrics.ObserveDrain("success", len(batch))
	p.logger.Debug("batch delivered",
		slog.Int("batch_size", len(batch)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (p *Pipeline) enrich(in domain.EventInput) *domain.InteractionEvent {
	if in.TokenUsage == nil && p.tokens != nil && in.ModelUsed != "" && (in.UserInput != "" || in.AIOutput != "") {
		in.TokenUsage = p.tokens.EstimateUsage(in.ModelUsed, in.UserInput, in.AIOutput)
	}
	return domain.NewInteractionEvent(p.newID(), p.clock(), in, p.contexts.Snapshot())
}
