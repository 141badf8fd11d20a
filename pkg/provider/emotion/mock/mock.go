// Package mock provides a test double for the emotion package interface.
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/emotion"
)

// AnalyzeCall records a single invocation of Provider.Analyze.
type AnalyzeCall struct {
	// Ctx is the context passed to Analyze.
	Ctx context.Context
	// Waveform is the waveform passed to Analyze.
	Waveform audio.Waveform
}

// Provider is a mock implementation of emotion.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Analyze when Fn is nil.
	Result emotion.Result

	// Err, if non-nil, is returned as the error from Analyze.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err.
	Fn func(ctx context.Context, w audio.Waveform) (emotion.Result, error)

	// Calls records every call to Analyze.
	Calls []AnalyzeCall
}

// Analyze records the call and returns Result, Err (or delegates to Fn).
func (p *Provider) Analyze(ctx context.Context, w audio.Waveform) (emotion.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, AnalyzeCall{Ctx: ctx, Waveform: w})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}
	return res, err
}

// CallCount returns the number of recorded Analyze calls. Thread-safe.
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

// Ensure Provider implements emotion.Provider at compile time.
var _ emotion.Provider = (*Provider)(nil)
