// Package tokens estimates token usage for AI interactions that did not
// report it themselves.
package tokens

import (
	"math"
	"strings"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
)

// Counter counts the tokens of a text for the models it supports.
type Counter interface {
	SupportsModel(model string) bool
	Count(model, text string) (int, error)
}

// Registry picks the first registered counter that supports a model and
// falls back to a character estimator.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter for
// OpenAI-family models and the default estimator as fallback.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewOpenAICounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// EstimateUsage counts prompt and completion tokens for one interaction.
// The result is always marked estimated. It returns nil if no counter works.
func (r *Registry) EstimateUsage(model, input, output string) *domain.TokenUsage {
	counter := r.GetCounter(model)
	if counter == nil {
		return nil
	}

	prompt, err := counter.Count(model, input)
	if err != nil {
		if r.fallback == nil || counter == r.fallback {
			return nil
		}
		counter = r.fallback
		if prompt, err = counter.Count(model, input); err != nil {
			return nil
		}
	}
	completion, err := counter.Count(model, output)
	if err != nil {
		return nil
	}

	return &domain.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}

// Estimator provides token count estimation based on character count.
// This is a fallback for models without a known tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0, // Reasonable default for most models
	}
}

// Count estimates the token count, rounding up so non-empty text counts.
func (e *Estimator) Count(model, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 4.0
	}
	return int(math.Ceil(float64(len(text)) / cpt)), nil
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the lower-cased model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	model = strings.ToLower(model)
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
