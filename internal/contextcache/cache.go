// Package contextcache keeps per-call analysis context in memory for the
// lifetime of a call. Each active call owns one [types.CallContext] holding
// its chunk-by-chunk evidence history; the judgement layer reads and appends
// to it through [Cache.Update], which serializes all mutation per call so
// chunks of the same call never race while chunks of different calls proceed
// in parallel.
//
// Calls that neither end explicitly nor receive chunks are reaped by an
// idle-TTL janitor so crashed clients cannot leak contexts.
package contextcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ringguard/ringguard/pkg/types"
)

// ErrContextNotFound is returned by [Cache.Get] when no context exists for
// the call ID.
var ErrContextNotFound = errors.New("contextcache: call context not found")

const (
	// defaultIdleTTL is how long a call context survives without updates
	// before the janitor evicts it. Calls rarely exceed an hour.
	defaultIdleTTL = 30 * time.Minute

	// defaultSweepInterval is how often the janitor scans for idle contexts.
	defaultSweepInterval = 1 * time.Minute

	// defaultMaxHistory bounds the evidence history kept per call. Older
	// entries roll off; the aggregate high-water mark is preserved by
	// CallContext itself.
	defaultMaxHistory = 64
)

// entry pairs a call context with its dedicated mutex. The per-entry mutex
// is what serializes same-call judgement; the cache-level mutex only guards
// the map.
type entry struct {
	mu  sync.Mutex
	ctx *types.CallContext
}

// Config holds tuning knobs for a [Cache]. Zero values are replaced with
// defaults.
type Config struct {
	// IdleTTL is how long a context may go without updates before eviction.
	IdleTTL time.Duration

	// SweepInterval is how often the janitor runs.
	SweepInterval time.Duration

	// MaxHistory caps the evidence entries retained per call.
	MaxHistory int
}

// Cache is the in-memory per-call context store. Safe for concurrent use.
type Cache struct {
	idleTTL       time.Duration
	sweepInterval time.Duration
	maxHistory    int

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Cache with the supplied configuration.
func New(cfg Config) *Cache {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	return &Cache{
		idleTTL:       cfg.IdleTTL,
		sweepInterval: cfg.SweepInterval,
		maxHistory:    cfg.MaxHistory,
		entries:       make(map[string]*entry),
	}
}

// Get returns a snapshot of the call's context. The returned value is a deep
// copy; mutating it does not affect the cache.
func (c *Cache) Get(callID string) (types.CallContext, error) {
	c.mu.Lock()
	e, ok := c.entries[callID]
	c.mu.Unlock()
	if !ok {
		return types.CallContext{}, ErrContextNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.ctx), nil
}

// Update runs fn against the call's context under the per-call mutex,
// creating the context on first use. fn may mutate the context freely; the
// post-update snapshot is returned. Updates to different calls never block
// each other.
func (c *Cache) Update(callID string, fn func(*types.CallContext)) types.CallContext {
	c.mu.Lock()
	e, ok := c.entries[callID]
	if !ok {
		e = &entry{ctx: types.NewCallContext(callID)}
		c.entries[callID] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.ctx)
	e.ctx.LastUpdate = time.Now()
	return snapshot(e.ctx)
}

// Append records one chunk's evidence in arrival order and returns the
// updated snapshot. Evidence is never reordered even when chunks are judged
// out of sequence.
func (c *Cache) Append(callID string, ev types.EvidenceSummary) types.CallContext {
	return c.Update(callID, func(cc *types.CallContext) {
		cc.AppendHistory(ev, c.maxHistory)
	})
}

// MaxHistory returns the per-call evidence bound, for callers that append
// inside an [Cache.Update] closure.
func (c *Cache) MaxHistory() int {
	return c.maxHistory
}

// Evict removes the call's context, typically on call end. Evicting an
// unknown call is a no-op.
func (c *Cache) Evict(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, callID)
}

// Len returns the number of active call contexts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run starts the idle janitor and blocks until ctx is cancelled. Call it in
// its own goroutine.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep evicts contexts idle longer than the TTL.
func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for callID, e := range c.entries {
		e.mu.Lock()
		idle := now.Sub(e.ctx.LastUpdate)
		e.mu.Unlock()
		if idle > c.idleTTL {
			delete(c.entries, callID)
			slog.Info("evicted idle call context",
				"call_id", callID,
				"idle", idle)
		}
	}
}

// snapshot deep-copies a call context so callers cannot alias cached state.
func snapshot(cc *types.CallContext) types.CallContext {
	out := *cc
	out.History = make([]types.EvidenceSummary, len(cc.History))
	copy(out.History, cc.History)
	return out
}
