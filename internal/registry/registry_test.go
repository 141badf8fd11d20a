package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ringguard/ringguard/pkg/types"
)

// fakeSink records delivered notifications and optionally fails.
type fakeSink struct {
	mu       sync.Mutex
	err      error
	received []types.Notification
}

func (s *fakeSink) Send(_ context.Context, n types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, n)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func verdict(callID string, level types.RiskLevel) types.RiskVerdict {
	return types.RiskVerdict{
		ID:                 "v-1",
		CallID:             callID,
		ChunkSequence:      3,
		Level:              level,
		RecommendedActions: []string{"Hang up immediately"},
	}
}

func TestNotifyReceiverAtThreshold(t *testing.T) {
	tests := []struct {
		name  string
		level types.RiskLevel
		want  bool
	}{
		{"low is suppressed", types.RiskLow, false},
		{"medium is delivered", types.RiskMedium, true},
		{"high is delivered", types.RiskHigh, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			sink := &fakeSink{}
			if err := r.Register("call-1", types.RoleReceiver, sink); err != nil {
				t.Fatalf("Register: %v", err)
			}

			sent, err := r.Notify(context.Background(), verdict("call-1", tt.level))
			if err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if sent != tt.want {
				t.Errorf("sent = %v, want %v", sent, tt.want)
			}
			if got := sink.count(); (got == 1) != tt.want {
				t.Errorf("sink received %d notifications", got)
			}
		})
	}
}

func TestCallerIsNeverNotified(t *testing.T) {
	r := New()
	sink := &fakeSink{}
	if err := r.Register("call-1", types.RoleCaller, sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sent, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sent {
		t.Errorf("high verdict was delivered to a caller registration")
	}
	if sink.count() != 0 {
		t.Errorf("caller sink received %d notifications, want 0", sink.count())
	}
}

func TestNotifyPayload(t *testing.T) {
	r := New()
	sink := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	n := sink.received[0]
	if n.CallID != "call-1" || n.ChunkSequence != 3 || n.Level != types.RiskHigh {
		t.Errorf("notification = %+v", n)
	}
	if n.Message == "" || len(n.Recommendations) == 0 || n.SentAt.IsZero() {
		t.Errorf("notification missing advisory fields: %+v", n)
	}
}

func TestRegisterReplacesConnection(t *testing.T) {
	r := New()
	old := &fakeSink{}
	replacement := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, old); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("call-1", types.RoleReceiver, replacement); err != nil {
		t.Fatalf("Register replacement: %v", err)
	}

	if _, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if old.count() != 0 || replacement.count() != 1 {
		t.Errorf("old received %d, replacement %d; want 0 and 1", old.count(), replacement.count())
	}
}

func TestFailedSendDropsConnection(t *testing.T) {
	r := New()
	sink := &fakeSink{err: errors.New("connection reset")}
	if err := r.Register("call-1", types.RoleReceiver, sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh)); err == nil {
		t.Fatalf("Notify returned nil error for a dead sink")
	}
	if r.Len() != 0 {
		t.Errorf("dead connection still registered")
	}

	// Next verdict finds nothing; no retry semantics.
	sink.err = nil
	sent, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh))
	if err != nil || sent {
		t.Errorf("Notify after drop = (%v, %v), want no delivery", sent, err)
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	receiver := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, receiver); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("call-1", types.RoleCaller, &fakeSink{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.Unregister("call-1", types.RoleReceiver, receiver)
	sent, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh))
	if err != nil || sent {
		t.Errorf("Notify after unregister = (%v, %v), want no delivery", sent, err)
	}

	r.UnregisterCall("call-1")
	if r.Len() != 0 {
		t.Errorf("UnregisterCall left %d calls registered", r.Len())
	}
}

func TestStaleUnregisterKeepsReplacement(t *testing.T) {
	r := New()
	stale := &fakeSink{}
	replacement := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, stale); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("call-1", types.RoleReceiver, replacement); err != nil {
		t.Fatalf("Register replacement: %v", err)
	}

	// The replaced connection's read loop winds down after the swap; its
	// cleanup must not unbind the live connection.
	r.Unregister("call-1", types.RoleReceiver, stale)

	sent, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !sent || replacement.count() != 1 {
		t.Errorf("replacement lost its registration: sent=%v received=%d", sent, replacement.count())
	}

	r.Unregister("call-1", types.RoleReceiver, replacement)
	if r.Len() != 0 {
		t.Errorf("matching unregister left %d calls registered", r.Len())
	}
}

// swappingSink registers a replacement for itself during Send, then fails,
// mimicking a reconnect that lands while a push to the old socket is in
// flight.
type swappingSink struct {
	r           *Registry
	replacement Sink
}

func (s *swappingSink) Send(context.Context, types.Notification) error {
	if err := s.r.Register("call-1", types.RoleReceiver, s.replacement); err != nil {
		return err
	}
	return errors.New("connection reset")
}

func TestFailedSendDoesNotDropReplacement(t *testing.T) {
	r := New()
	replacement := &fakeSink{}
	dead := &swappingSink{r: r, replacement: replacement}
	if err := r.Register("call-1", types.RoleReceiver, dead); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh)); err == nil {
		t.Fatal("Notify returned nil error for the dead sink")
	}

	// The failed send must drop only the dead connection, not the one that
	// replaced it mid-flight.
	sent, err := r.Notify(context.Background(), verdict("call-1", types.RiskHigh))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !sent || replacement.count() != 1 {
		t.Errorf("replacement lost its registration: sent=%v received=%d", sent, replacement.count())
	}
}

func TestRegisterRejectsInvalidRole(t *testing.T) {
	r := New()
	if err := r.Register("call-1", types.Role("observer"), &fakeSink{}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("Register error = %v, want ErrInvalidRole", err)
	}
}

func TestWithThreshold(t *testing.T) {
	r := New(WithThreshold(types.RiskHigh))
	sink := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if sent, _ := r.Notify(context.Background(), verdict("call-1", types.RiskMedium)); sent {
		t.Errorf("medium delivered under a high threshold")
	}
	if sent, _ := r.Notify(context.Background(), verdict("call-1", types.RiskHigh)); !sent {
		t.Errorf("high suppressed under a high threshold")
	}
}

func TestSetThreshold(t *testing.T) {
	r := New()
	sink := &fakeSink{}
	if err := r.Register("call-1", types.RoleReceiver, sink); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.SetThreshold(types.RiskHigh)
	if sent, _ := r.Notify(context.Background(), verdict("call-1", types.RiskMedium)); sent {
		t.Errorf("medium delivered after raising the threshold")
	}

	r.SetThreshold(types.RiskLow)
	if sent, _ := r.Notify(context.Background(), verdict("call-1", types.RiskLow)); !sent {
		t.Errorf("low suppressed after lowering the threshold")
	}
}
