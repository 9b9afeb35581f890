package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/testutil"
)

func testBatch(ids ...string) []*domain.InteractionEvent {
	var batch []*domain.InteractionEvent
	for _, id := range ids {
		batch = append(batch, domain.NewInteractionEvent(id,
			time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
			domain.EventInput{EventType: domain.EventTypeUserInteraction, InteractionType: "click", View: "editor"},
			domain.GlobalContext{UserID: "user-1", SessionID: "session-1", AppVersion: "1.4.0", CurrentView: "editor"}))
	}
	return batch
}

type collectorStub struct {
	mu      sync.Mutex
	status  int
	bodies  [][]map[string]any
	headers []http.Header
}

func (c *collectorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var events []map[string]any
	_ = json.NewDecoder(r.Body).Decode(&events)

	c.mu.Lock()
	c.bodies = append(c.bodies, events)
	c.headers = append(c.headers, r.Header.Clone())
	status := c.status
	c.mu.Unlock()

	if status == 0 {
		status = http.StatusAccepted
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("stub says " + http.StatusText(status)))
}

func (c *collectorStub) requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestHTTPTransport_Send(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	tr := NewHTTP(HTTPConfig{
		Endpoint: srv.URL + "/v1/events",
		Headers:  map[string]string{"X-Api-Key": "secret"},
	})

	if err := tr.Send(context.Background(), testBatch("evt_1", "evt_2")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if stub.requests() != 1 {
		t.Fatalf("requests = %d, want 1", stub.requests())
	}
	body := stub.bodies[0]
	if len(body) != 2 {
		t.Fatalf("events in body = %d, want 2", len(body))
	}
	if body[0]["id"] != "evt_1" || body[0]["userId"] != "user-1" {
		t.Errorf("first event = %v", body[0])
	}
	h := stub.headers[0]
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", h.Get("Content-Type"))
	}
	if h.Get("X-Api-Key") != "secret" {
		t.Errorf("X-Api-Key = %q, want secret", h.Get("X-Api-Key"))
	}
}

func TestHTTPTransport_SendNon2xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusMultipleChoices} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(&collectorStub{status: status})
			defer srv.Close()

			tr := NewHTTP(HTTPConfig{Endpoint: srv.URL})
			err := tr.Send(context.Background(), testBatch("evt_1"))
			if err == nil {
				t.Fatal("Send() error = nil, want status error")
			}
			if !strings.Contains(err.Error(), "stub says") {
				t.Errorf("Send() error = %v, want body snippet", err)
			}
		})
	}
}

func TestHTTPTransport_SendUnreachable(t *testing.T) {
	srv := httptest.NewServer(&collectorStub{})
	url := srv.URL
	srv.Close()

	tr := NewHTTP(HTTPConfig{Endpoint: url})
	if err := tr.Send(context.Background(), testBatch("evt_1")); err == nil {
		t.Error("Send() error = nil, want connection error")
	}
}

func TestHTTPTransport_BlockPrivateNetworks(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	tr := NewHTTP(HTTPConfig{Endpoint: srv.URL, BlockPrivateNetworks: true})
	if err := tr.Send(context.Background(), testBatch("evt_1")); err == nil {
		t.Fatal("Send() error = nil, want private network denial")
	}
	if stub.requests() != 0 {
		t.Errorf("requests = %d, want 0", stub.requests())
	}
}

func TestHTTPTransport_BeaconOutlivesCaller(t *testing.T) {
	release := make(chan struct{})
	var got int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		var events []map[string]any
		_ = json.NewDecoder(r.Body).Decode(&events)
		mu.Lock()
		got = len(events)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHTTP(HTTPConfig{Endpoint: srv.URL, BeaconTimeout: 2 * time.Second})

	start := time.Now()
	if ok := tr.Beacon(testBatch("evt_1", "evt_2", "evt_3")); !ok {
		t.Fatal("Beacon() = false, want true")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Beacon() blocked for %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx); err == nil {
		t.Error("Wait() error = nil while beacon is held, want deadline")
	}

	close(release)
	if err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got != 3 {
		t.Errorf("beacon delivered %d events, want 3", got)
	}
}

func TestHTTPTransport_RecordedCollector(t *testing.T) {
	tr := NewHTTP(HTTPConfig{
		Endpoint: "http://collector.test/v1/events",
		Headers:  map[string]string{"X-Api-Key": "test-key"},
		Client:   testutil.CollectorCassette(t, "collector_accept"),
	})

	if err := tr.Send(context.Background(), testBatch("evt_00000000000000000000000000000001")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestHTTPTransport_RecordedUnavailableThenAccepted(t *testing.T) {
	tr := NewHTTP(HTTPConfig{
		Endpoint: "http://collector.test/v1/events",
		Client:   testutil.CollectorCassette(t, "collector_unavailable"),
	})

	err := tr.Send(context.Background(), testBatch("evt_1"))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("first Send() error = %v, want 503", err)
	}
	if err := tr.Send(context.Background(), testBatch("evt_1")); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
}
