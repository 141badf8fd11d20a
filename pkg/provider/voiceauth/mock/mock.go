// Package mock provides a test double for the voiceauth package interface.
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/voiceauth"
)

// DetectCall records a single invocation of Provider.Detect.
type DetectCall struct {
	// Ctx is the context passed to Detect.
	Ctx context.Context
	// Waveform is the waveform passed to Detect.
	Waveform audio.Waveform
}

// Provider is a mock implementation of voiceauth.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Detect when Fn is nil.
	Result voiceauth.Result

	// Err, if non-nil, is returned as the error from Detect.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err.
	Fn func(ctx context.Context, w audio.Waveform) (voiceauth.Result, error)

	// Calls records every call to Detect.
	Calls []DetectCall
}

// Detect records the call and returns Result, Err (or delegates to Fn).
func (p *Provider) Detect(ctx context.Context, w audio.Waveform) (voiceauth.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, DetectCall{Ctx: ctx, Waveform: w})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}
	return res, err
}

// CallCount returns the number of recorded Detect calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements voiceauth.Provider at compile time.
var _ voiceauth.Provider = (*Provider)(nil)
