// Package mock provides a test double for the reason package interface.
package mock

import (
	"context"
	"sync"

	"github.com/ringguard/ringguard/pkg/provider/reason"
)

// AssessCall records a single invocation of Provider.Assess.
type AssessCall struct {
	// Ctx is the context passed to Assess.
	Ctx context.Context
	// Req is the request passed to Assess.
	Req reason.Request
}

// Provider is a mock implementation of reason.Provider.
type Provider struct {
	mu sync.Mutex

	// Assessment is returned from Assess when Fn is nil.
	Assessment reason.Assessment

	// Err, if non-nil, is returned as the error from Assess.
	Err error

	// Fn, if non-nil, is invoked instead of returning Assessment/Err.
	Fn func(ctx context.Context, req reason.Request) (reason.Assessment, error)

	// Calls records every call to Assess.
	Calls []AssessCall
}

// Assess records the call and returns Assessment, Err (or delegates to Fn).
func (p *Provider) Assess(ctx context.Context, req reason.Request) (reason.Assessment, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, AssessCall{Ctx: ctx, Req: req})
	fn := p.Fn
	res, err := p.Assessment, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// CallCount returns the number of recorded Assess calls. Thread-safe.
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

// Ensure Provider implements reason.Provider at compile time.
var _ reason.Provider = (*Provider)(nil)
