package resilience

import (
	"context"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
)

// TranscribeFallback implements [transcribe.Provider] with automatic failover
// across multiple transcription backends. Each backend has its own circuit
// breaker.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Provider]
}

// Compile-time interface assertion.
var _ transcribe.Provider = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Provider, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription provider as a fallback.
func (f *TranscribeFallback) AddFallback(name string, provider transcribe.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the waveform through the first healthy backend. If the
// primary fails, subsequent fallbacks are tried.
func (f *TranscribeFallback) Transcribe(ctx context.Context, w audio.Waveform) (transcribe.Result, error) {
	return ExecuteWithResult(f.group, func(p transcribe.Provider) (transcribe.Result, error) {
		return p.Transcribe(ctx, w)
	})
}
