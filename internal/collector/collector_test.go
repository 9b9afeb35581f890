package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/transport"
)

func batchOf(ids ...string) []*domain.InteractionEvent {
	out := make([]*domain.InteractionEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.NewInteractionEvent(id, time.Now(),
			domain.EventInput{EventType: domain.EventTypeUserInteraction, InteractionType: "click"},
			domain.GlobalContext{SessionID: "s1"}))
	}
	return out
}

func post(t *testing.T, c *Collector, batch []*domain.InteractionEvent) int {
	t.Helper()
	body, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body)))
	return rec.Code
}

func TestCollector_AcceptsAndLists(t *testing.T) {
	c := New()

	if code := post(t, c, batchOf("evt_1", "evt_2")); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	var resp ListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Received != 2 || len(resp.Events) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Events[0].ID != "evt_1" || resp.Events[1].SessionID != "s1" {
		t.Errorf("events = %+v, %+v", resp.Events[0], resp.Events[1])
	}
}

func TestCollector_CapacityKeepsNewest(t *testing.T) {
	c := New(WithCapacity(3))
	for i := 1; i <= 5; i++ {
		post(t, c, batchOf(fmt.Sprintf("evt_%d", i)))
	}

	got := c.Events()
	want := []string{"evt_3", "evt_4", "evt_5"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, evt := range got {
		if evt.ID != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, evt.ID, want[i])
		}
	}
}

func TestCollector_FailRate(t *testing.T) {
	c := New(WithFailRate(0.5), WithRandom(func() float64 { return 0.1 }))
	if code := post(t, c, batchOf("evt_1")); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if len(c.Events()) != 0 {
		t.Error("rejected batch should not be retained")
	}

	c = New(WithFailRate(0.5), WithRandom(func() float64 { return 0.9 }))
	if code := post(t, c, batchOf("evt_1")); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
}

func TestCollector_RejectsMalformedBatch(t *testing.T) {
	c := New()
	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString(`{"id":"x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCollector_ReceivesFromHTTPTransport(t *testing.T) {
	c := New()
	srv := httptest.NewServer(c)
	defer srv.Close()

	tr := transport.NewHTTP(transport.HTTPConfig{Endpoint: srv.URL + "/v1/events"})
	if err := tr.Send(context.Background(), batchOf("evt_a", "evt_b")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := len(c.Events()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
}
