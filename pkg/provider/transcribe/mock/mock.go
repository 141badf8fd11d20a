// Package mock provides a test double for the transcribe package interface.
//
// Use Provider to feed controlled transcription results and inspect which
// waveforms were delivered.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: transcribe.Result{Text: "hello there"},
//	}
//	res, _ := p.Transcribe(ctx, waveform)
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/audio"
	"github.com/ringguard/ringguard/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Waveform is the waveform passed to Transcribe.
	Waveform audio.Waveform
}

// Provider is a mock implementation of transcribe.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Transcribe when Fn is nil.
	Result transcribe.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Fn, if non-nil, is invoked instead of returning Result/Err. Useful for
	// per-call behavior such as blocking until a context is cancelled.
	Fn func(ctx context.Context, w audio.Waveform) (transcribe.Result, error)

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err (or delegates to Fn).
func (p *Provider) Transcribe(ctx context.Context, w audio.Waveform) (transcribe.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Waveform: w})
	fn := p.Fn
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w)
	}
	return res, err
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
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

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)
