// Package registry routes risk notifications to registered call
// participants. Routing policy is asymmetric on purpose: only the receiver
// side of a call is ever notified, because alerting the caller of a flagged
// call would tip off the very party under suspicion. Caller registrations
// are accepted and tracked but never receive a payload.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ringguard/ringguard/pkg/types"
)

// ErrInvalidRole is returned when a registration names an unknown role.
var ErrInvalidRole = errors.New("registry: invalid participant role")

// Sink delivers one notification to a participant's connection. The
// websocket transport adapts its connection type to this interface.
//
// Send must honor ctx and return an error when the connection is unusable;
// the registry treats any send error as a dead connection and drops the
// registration without retrying.
type Sink interface {
	Send(ctx context.Context, n types.Notification) error
}

// Registry tracks at most one live connection per call and role. Safe for
// concurrent use.
type Registry struct {
	mu        sync.Mutex
	threshold types.RiskLevel
	conns     map[string]map[types.Role]Sink
}

// Option configures a Registry.
type Option func(*Registry)

// WithThreshold overrides the minimum verdict level that triggers a
// notification. Default: medium.
func WithThreshold(level types.RiskLevel) Option {
	return func(r *Registry) {
		r.threshold = level
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		threshold: types.RiskMedium,
		conns:     make(map[string]map[types.Role]Sink),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetThreshold changes the minimum verdict level that triggers a
// notification. Safe to call while notifications are in flight.
func (r *Registry) SetThreshold(level types.RiskLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threshold = level
}

// Register binds sink as the connection for (callID, role). A later
// registration for the same pair replaces the earlier one; the replaced
// connection is simply forgotten.
func (r *Registry) Register(callID string, role types.Role, sink Sink) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if sink == nil {
		return errors.New("registry: sink must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	byRole, ok := r.conns[callID]
	if !ok {
		byRole = make(map[types.Role]Sink, 2)
		r.conns[callID] = byRole
	}
	if _, replaced := byRole[role]; replaced {
		slog.Info("replacing participant connection",
			"call_id", callID,
			"role", role)
	}
	byRole[role] = sink
	return nil
}

// Unregister removes the connection for (callID, role), typically on client
// disconnect. The removal only happens when sink is still the registered
// connection for the pair: a stale connection's cleanup must not unbind the
// connection that replaced it. Unknown pairs are a no-op.
func (r *Registry) Unregister(callID string, role types.Role, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(callID, role, sink)
}

// UnregisterCall drops every connection of the call, used on call end.
func (r *Registry) UnregisterCall(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, callID)
}

// Len returns the number of calls with at least one registered connection.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Notify pushes the verdict to the call's receiver when the level meets the
// threshold. It reports whether a notification was delivered. A failed send
// drops the registration and is not retried; the next qualifying verdict
// simply finds no connection.
func (r *Registry) Notify(ctx context.Context, v types.RiskVerdict) (bool, error) {
	r.mu.Lock()
	threshold := r.threshold
	sink := r.conns[v.CallID][types.RoleReceiver]
	r.mu.Unlock()
	if v.Level < threshold {
		return false, nil
	}
	if sink == nil {
		slog.Debug("no receiver registered for qualifying verdict",
			"call_id", v.CallID,
			"level", v.Level)
		return false, nil
	}

	n := types.Notification{
		CallID:          v.CallID,
		ChunkSequence:   v.ChunkSequence,
		Level:           v.Level,
		Message:         message(v.Level),
		Recommendations: v.RecommendedActions,
		SentAt:          time.Now(),
	}
	if err := sink.Send(ctx, n); err != nil {
		r.mu.Lock()
		r.removeLocked(v.CallID, types.RoleReceiver, sink)
		r.mu.Unlock()
		slog.Warn("dropping receiver connection after failed send",
			"call_id", v.CallID,
			"error", err)
		return false, fmt.Errorf("registry: notify receiver of call %s: %w", v.CallID, err)
	}
	return true, nil
}

// removeLocked deletes (callID, role) only while sink is still the
// registered connection for the pair.
func (r *Registry) removeLocked(callID string, role types.Role, sink Sink) {
	byRole, ok := r.conns[callID]
	if !ok || byRole[role] != sink {
		return
	}
	delete(byRole, role)
	if len(byRole) == 0 {
		delete(r.conns, callID)
	}
}

func message(level types.RiskLevel) string {
	switch level {
	case types.RiskHigh:
		return "High scam risk detected on this call"
	case types.RiskMedium:
		return "This call shows possible scam indicators"
	default:
		return "No significant risk detected"
	}
}
