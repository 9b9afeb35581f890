package domain

import (
	"maps"
	"sync"
)

// ClientInfo describes the host process that produced an event.
type ClientInfo struct {
	Name            string `json:"name,omitempty"`
	Version         string `json:"version,omitempty"`
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platformVersion,omitempty"`
	Arch            string `json:"arch,omitempty"`
	Runtime         string `json:"runtime,omitempty"`
}

// GlobalContext is the process-wide context stamped onto every event at
// creation time. Its JSON fields are flattened into InteractionEvent.
type GlobalContext struct {
	UserID          string         `json:"userId,omitempty"`
	SessionID       string         `json:"sessionId,omitempty"`
	AppVersion      string         `json:"appVersion,omitempty"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
	CurrentView     string         `json:"currentView,omitempty"`
	ExtraAttributes map[string]any `json:"extraAttributes,omitempty"`

	// Details are baseline context details. Enrichment merges them under the
	// contextDetails supplied with each event.
	Details map[string]any `json:"-"`
}

// Clone returns a copy that shares no maps with g.
func (g GlobalContext) Clone() GlobalContext {
	g.ExtraAttributes = maps.Clone(g.ExtraAttributes)
	g.Details = maps.Clone(g.Details)
	return g
}

// ContextUpdate is a partial GlobalContext. Nil fields are left untouched;
// map fields are merged key by key, and a nil map value deletes the key.
type ContextUpdate struct {
	UserID          *string        `json:"userId,omitempty"`
	SessionID       *string        `json:"sessionId,omitempty"`
	AppVersion      *string        `json:"appVersion,omitempty"`
	ClientInfo      *ClientInfo    `json:"clientInfo,omitempty"`
	CurrentView     *string        `json:"currentView,omitempty"`
	ExtraAttributes map[string]any `json:"extraAttributes,omitempty"`
	ContextDetails  map[string]any `json:"contextDetails,omitempty"`
}

// ContextHolder owns the live GlobalContext. One holder is shared by the
// pipeline and the version store of an agent.
type ContextHolder struct {
	mu  sync.RWMutex
	ctx GlobalContext
}

// NewContextHolder creates a holder seeded with initial.
func NewContextHolder(initial GlobalContext) *ContextHolder {
	return &ContextHolder{ctx: initial.Clone()}
}

// Snapshot returns a copy of the current context.
func (h *ContextHolder) Snapshot() GlobalContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx.Clone()
}

// Update merges u into the live context. Snapshots taken earlier are unaffected.
func (h *ContextHolder) Update(u ContextUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if u.UserID != nil {
		h.ctx.UserID = *u.UserID
	}
	if u.SessionID != nil {
		h.ctx.SessionID = *u.SessionID
	}
	if u.AppVersion != nil {
		h.ctx.AppVersion = *u.AppVersion
	}
	if u.ClientInfo != nil {
		h.ctx.ClientInfo = *u.ClientInfo
	}
	if u.CurrentView != nil {
		h.ctx.CurrentView = *u.CurrentView
	}
	h.ctx.ExtraAttributes = mergeAttributes(h.ctx.ExtraAttributes, u.ExtraAttributes)
	h.ctx.Details = mergeAttributes(h.ctx.Details, u.ContextDetails)
}

// mergeAttributes copies src over a clone of dst. Nil values delete keys.
func mergeAttributes(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	out := maps.Clone(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, v := range src {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}
