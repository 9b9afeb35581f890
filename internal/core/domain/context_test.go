package domain

import "testing"

func strPtr(s string) *string { return &s }

func TestContextHolder_Update(t *testing.T) {
	h := NewContextHolder(GlobalContext{
		UserID:          "u1",
		SessionID:       "s1",
		ExtraAttributes: map[string]any{"plan": "free", "beta": true},
	})

	before := h.Snapshot()

	h.Update(ContextUpdate{
		UserID:          strPtr("u2"),
		CurrentView:     strPtr("editor"),
		ExtraAttributes: map[string]any{"plan": "pro", "beta": nil},
		ContextDetails:  map[string]any{"tab": "history"},
	})

	after := h.Snapshot()
	if after.UserID != "u2" {
		t.Errorf("UserID = %q, want u2", after.UserID)
	}
	if after.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1 (untouched)", after.SessionID)
	}
	if after.CurrentView != "editor" {
		t.Errorf("CurrentView = %q, want editor", after.CurrentView)
	}
	if after.ExtraAttributes["plan"] != "pro" {
		t.Errorf("plan = %v, want pro", after.ExtraAttributes["plan"])
	}
	if _, ok := after.ExtraAttributes["beta"]; ok {
		t.Error("beta should be deleted by nil value")
	}
	if after.Details["tab"] != "history" {
		t.Errorf("Details[tab] = %v, want history", after.Details["tab"])
	}

	// Earlier snapshots are isolated from updates.
	if before.UserID != "u1" || before.ExtraAttributes["plan"] != "free" {
		t.Errorf("earlier snapshot changed: %+v", before)
	}
}

func TestContextHolder_SnapshotIsolation(t *testing.T) {
	h := NewContextHolder(GlobalContext{ExtraAttributes: map[string]any{"k": "v"}})

	snap := h.Snapshot()
	snap.ExtraAttributes["k"] = "mutated"

	if got := h.Snapshot().ExtraAttributes["k"]; got != "v" {
		t.Errorf("holder state = %v, want v", got)
	}
}
