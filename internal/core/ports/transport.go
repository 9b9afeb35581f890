// Package ports defines the interfaces between the telemetry core and its adapters.
package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
)

// Transport delivers a batch of events to the collector.
// Any returned error is treated as a failed delivery and the batch is retried.
type Transport interface {
	Send(ctx context.Context, batch []*domain.InteractionEvent) error
}

// Beaconer is implemented by transports that have a fire-and-forget primitive
// suitable for process teardown. Beacon must not block; it reports whether the
// batch was handed off.
type Beaconer interface {
	Beacon(batch []*domain.InteractionEvent) bool
}

// EventRecorder accepts events for enrichment and delivery.
// RecordEvent never blocks and never fails from the caller's point of view.
type EventRecorder interface {
	RecordEvent(in domain.EventInput)
}
