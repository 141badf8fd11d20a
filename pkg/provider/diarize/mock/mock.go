// Package mock provides a test double for the diarize package interface.
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/diarize"
)

// DiarizeCall records a single invocation of Provider.Diarize.
type DiarizeCall struct {
	// Ctx is the context passed to Diarize.
	Ctx context.Context
	// Waveform is the waveform passed to Diarize.
	Waveform audio.Waveform
}

// Provider is a mock implementation of diarize.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Diarize when Fn is nil.
	Result diarize.Result

	// Err, if non-nil, is returned as the error from Diarize.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err.
	Fn func(ctx context.Context, w audio.Waveform) (diarize.Result, error)

	// Calls records every call to Diarize.
	Calls []DiarizeCall
}

// Diarize records the call and returns Result, Err (or delegates to Fn).
func (p *Provider) Diarize(ctx context.Context, w audio.Waveform) (diarize.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, DiarizeCall{Ctx: ctx, Waveform: w})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}
	return res, err
}

// CallCount returns the number of recorded Diarize calls. Thread-safe.
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

// Ensure Provider implements diarize.Provider at compile time.
var _ diarize.Provider = (*Provider)(nil)
