// Package mock provides a test double for the ambience package interface.
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/ambience"
)

// ClassifyCall records a single invocation of Provider.Classify.
type ClassifyCall struct {
	// Ctx is the context passed to Classify.
	Ctx context.Context
	// Waveform is the waveform passed to Classify.
	Waveform audio.Waveform
}

// Provider is a mock implementation of ambience.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Classify when Fn is nil.
	Result ambience.Result

	// Err, if non-nil, is returned as the error from Classify.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err.
	Fn func(ctx context.Context, w audio.Waveform) (ambience.Result, error)

	// Calls records every call to Classify.
	Calls []ClassifyCall
}

// Classify records the call and returns Result, Err (or delegates to Fn).
func (p *Provider) Classify(ctx context.Context, w audio.Waveform) (ambience.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, ClassifyCall{Ctx: ctx, Waveform: w})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}
	return res, err
}

// CallCount returns the number of recorded Classify calls. Thread-safe.
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

// Ensure Provider implements ambience.Provider at compile time.
var _ ambience.Provider = (*Provider)(nil)
