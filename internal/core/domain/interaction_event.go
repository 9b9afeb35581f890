package domain

import (
	"maps"
	"time"
)

// EventType is the broad category of an interaction event.
type EventType string

const (
	EventTypeUserInteraction EventType = "user_interaction"
	EventTypeAIInteraction   EventType = "ai_interaction"
	EventTypeSystemAction    EventType = "system_action"
	EventTypeError           EventType = "error"
)

// Outcome reports whether the interaction succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// TokenUsage is the token accounting of an AI interaction.
type TokenUsage struct {
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	TotalTokens      int  `json:"totalTokens"`
	Estimated        bool `json:"estimated,omitempty"` // counted locally rather than reported by the model provider
}

// EventInput is what producers hand to the pipeline: every InteractionEvent
// field except the generated id, the timestamp and the global context.
type EventInput struct {
	EventType       EventType      `json:"eventType"`
	InteractionType string         `json:"interactionType"`
	View            string         `json:"view,omitempty"`
	UserInput       string         `json:"userInput,omitempty"`
	AIOutput        string         `json:"aiOutput,omitempty"`
	Outcome         Outcome        `json:"outcome"`
	LatencyMs       *int64         `json:"latencyMs,omitempty"`
	ModelUsed       string         `json:"modelUsed,omitempty"`
	TokenUsage      *TokenUsage    `json:"tokenUsage,omitempty"`
	CustomData      map[string]any `json:"customData,omitempty"`
	ContextDetails  map[string]any `json:"contextDetails,omitempty"`
}

// InteractionEvent is one enriched, immutable record destined for the collector.
// The pipeline never modifies an event after it has been created.
type InteractionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventInput
	GlobalContext
}

// NewInteractionEvent enriches in with id, timestamp and a snapshot of the
// global context. contextDetails from the context are merged beneath the
// event's own details, which win on key conflicts.
func NewInteractionEvent(id string, ts time.Time, in EventInput, gc GlobalContext) *InteractionEvent {
	gc = gc.Clone()
	in.CustomData = maps.Clone(in.CustomData)
	if in.TokenUsage != nil {
		usage := *in.TokenUsage
		in.TokenUsage = &usage
	}
	if in.LatencyMs != nil {
		latency := *in.LatencyMs
		in.LatencyMs = &latency
	}
	if in.Outcome == "" {
		in.Outcome = OutcomeSuccess
	}

	details := maps.Clone(gc.Details)
	if len(in.ContextDetails) > 0 {
		if details == nil {
			details = make(map[string]any, len(in.ContextDetails))
		}
		maps.Copy(details, in.ContextDetails)
	}
	in.ContextDetails = details

	return &InteractionEvent{
		ID:            id,
		Timestamp:     ts,
		EventInput:    in,
		GlobalContext: gc,
	}
}
