// Package transport delivers event batches to a collector.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/core/ports"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/safehttp"
)

// DefaultBeaconTimeout bounds a detached shutdown request.
const DefaultBeaconTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	Endpoint             string
	Headers              map[string]string
	BeaconTimeout        time.Duration
	BlockPrivateNetworks bool
	// Client overrides the HTTP client, e.g. for recorded tests.
	Client *http.Client
	Logger *slog.Logger
}

// HTTPTransport POSTs batches as a JSON array to the collector endpoint.
type HTTPTransport struct {
	endpoint      string
	headers       map[string]string
	beaconTimeout time.Duration
	client        *http.Client
	logger        *slog.Logger

	beacons sync.WaitGroup
}

var (
	_ ports.Transport = (*HTTPTransport)(nil)
	_ ports.Beaconer  = (*HTTPTransport)(nil)
)

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg HTTPConfig) *HTTPTransport {
	client := cfg.Client
	if client == nil {
		var base http.RoundTripper = http.DefaultTransport
		if cfg.BlockPrivateNetworks {
			base = safehttp.NewTransport()
		}
		client = &http.Client{Transport: otelhttp.NewTransport(base)}
	}

	timeout := cfg.BeaconTimeout
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTransport{
		endpoint:      cfg.Endpoint,
		headers:       cfg.Headers,
		beaconTimeout: timeout,
		client:        client,
		logger:        logger.With(slog.String("transport", "http")),
	}
}

// Send posts batch and waits for the collector's status.
func (t *HTTPTransport) Send(ctx context.Context, batch []*domain.InteractionEvent) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	return t.post(ctx, body)
}

// Beacon hands batch to a detached request and returns immediately. The
// request is bounded by the beacon timeout, not by any caller context.
func (t *HTTPTransport) Beacon(batch []*domain.InteractionEvent) bool {
	body, err := json.Marshal(batch)
	if err != nil {
		t.logger.Warn("beacon marshal failed", slog.String("error", err.Error()))
		return false
	}

	t.beacons.Add(1)
	go func() {
		defer t.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.beaconTimeout)
		defer cancel()
		if err := t.post(ctx, body); err != nil {
			t.logger.Warn("beacon delivery failed",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
		}
	}()
	return true
}

// Wait blocks until outstanding beacons finish or ctx is done.
func (t *HTTPTransport) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("collector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("collector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
