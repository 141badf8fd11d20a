package resilience

import (
	"context"

	"github.com/ringguard/ringguard/pkg/provider/reason"
)

// ReasonFallback implements [reason.Provider] with automatic failover across
// multiple LLM backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
// Typical wiring is a local Ollama primary with a hosted API as fallback.
type ReasonFallback struct {
	group *FallbackGroup[reason.Provider]
}

// Compile-time interface assertion.
var _ reason.Provider = (*ReasonFallback)(nil)

// NewReasonFallback creates a [ReasonFallback] with primary as the preferred
// backend.
func NewReasonFallback(primary reason.Provider, primaryName string, cfg FallbackConfig) *ReasonFallback {
	return &ReasonFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional reasoner as a fallback.
func (f *ReasonFallback) AddFallback(name string, provider reason.Provider) {
	f.group.AddFallback(name, provider)
}

// Assess sends the request to the first healthy reasoner and returns its
// assessment. If the primary fails, subsequent fallbacks are tried.
func (f *ReasonFallback) Assess(ctx context.Context, req reason.Request) (reason.Assessment, error) {
	return ExecuteWithResult(f.group, func(p reason.Provider) (reason.Assessment, error) {
		return p.Assess(ctx, req)
	})
}
