package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
)

// DefaultNATSSubject is used when no subject is configured.
const DefaultNATSSubject = "telemetry.events"

// natsPublisher is the subset of *nats.Conn the transport uses.
type natsPublisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSTransport publishes each batch as one JSON message.
type NATSTransport struct {
	nc      natsPublisher
	closeNc func()
	subject string
	logger  *slog.Logger
}

var (
	_ ports.Transport = (*NATSTransport)(nil)
	_ ports.Beaconer  = (*NATSTransport)(nil)
)

// NewNATS connects to url and returns a transport publishing on subject.
func NewNATS(url, subject string, logger *slog.Logger) (*NATSTransport, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("telemetry-agent"),
		natsgo.MaxReconnects(3),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	t := newNATS(nc, subject, logger)
	t.closeNc = nc.Close
	return t, nil
}

func newNATS(nc natsPublisher, subject string, logger *slog.Logger) *NATSTransport {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSTransport{
		nc:      nc,
		subject: subject,
		logger:  logger.With(slog.String("transport", "nats")),
	}
}

// Send publishes batch and waits for the server to acknowledge the flush.
func (t *NATSTransport) Send(ctx context.Context, batch []*domain.InteractionEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := t.nc.Publish(t.subject, payload); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	if err := t.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

// Beacon buffers batch in the client without waiting for the server.
func (t *NATSTransport) Beacon(batch []*domain.InteractionEvent) bool {
	payload, err := json.Marshal(batch)
	if err != nil {
		return false
	}
	if err := t.nc.Publish(t.subject, payload); err != nil {
		t.logger.Warn("nats beacon publish failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Close closes the connection if the transport opened it.
func (t *NATSTransport) Close() error {
	if t.closeNc != nil {
		t.closeNc()
	}
	return nil
}
