package transport

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
)

// Open builds the transport selected by cfg.Transport.Type.
func Open(cfg *config.Config, logger *slog.Logger) (ports.Transport, error) {
	tc := cfg.Transport
	switch strings.ToLower(tc.Type) {
	case "", "http":
		return NewHTTP(HTTPConfig{
			Endpoint:             cfg.Pipeline.Endpoint,
			Headers:              tc.Headers,
			BeaconTimeout:        time.Duration(tc.BeaconTimeoutMs) * time.Millisecond,
			BlockPrivateNetworks: tc.BlockPrivateNetworks,
			Logger:               logger,
		}), nil
	case "nats":
		if tc.NATS.URL == "" {
			return nil, fmt.Errorf("nats transport requires transport.nats.url")
		}
		return NewNATS(tc.NATS.URL, tc.NATS.Subject, logger)
	case "kafka":
		return NewKafka(KafkaConfig{
			Brokers:  tc.Kafka.Brokers,
			Topic:    tc.Kafka.Topic,
			ClientID: tc.Kafka.ClientID,
		})
	default:
		return nil, fmt.Errorf("unknown transport type: %s", tc.Type)
	}
}
