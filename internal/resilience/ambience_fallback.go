package resilience

import (
	"context"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
)

// AmbienceFallback implements [ambience.Provider] with automatic failover
// across multiple background classifiers. The standard wiring pairs a PANNs
// sidecar primary with the in-process spectral classifier as last resort, so
// background analysis keeps producing results even with the model server
// down.
type AmbienceFallback struct {
	group *FallbackGroup[ambience.Provider]
}

// Compile-time interface assertion.
var _ ambience.Provider = (*AmbienceFallback)(nil)

// NewAmbienceFallback creates an [AmbienceFallback] with primary as the
// preferred backend.
func NewAmbienceFallback(primary ambience.Provider, primaryName string, cfg FallbackConfig) *AmbienceFallback {
	return &AmbienceFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional background classifier as a fallback.
func (f *AmbienceFallback) AddFallback(name string, provider ambience.Provider) {
	f.group.AddFallback(name, provider)
}

// Classify runs the waveform through the first healthy classifier. If the
// primary fails, subsequent fallbacks are tried.
func (f *AmbienceFallback) Classify(ctx context.Context, w audio.Waveform) (ambience.Result, error) {
	return ExecuteWithResult(f.group, func(p ambience.Provider) (ambience.Result, error) {
		return p.Classify(ctx, w)
	})
}
