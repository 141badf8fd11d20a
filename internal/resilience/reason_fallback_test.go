package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/ringguard/ringguard/pkg/provider/reason"
	reasonmock "github.com/ringguard/ringguard/pkg/provider/reason/mock"
	"github.com/ringguard/ringguard/pkg/types"
)

func TestReasonFallback_PrimarySuccess(t *testing.T) {
	primary := &reasonmock.Provider{
		Assessment: reason.Assessment{Level: types.RiskHigh, ScamType: "tech_support"},
	}
	secondary := &reasonmock.Provider{}

	f := NewReasonFallback(primary, "ollama", FallbackConfig{})
	f.AddFallback("openai", secondary)

	a, err := f.Assess(context.Background(), reason.Request{CallID: "c1"})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Level != types.RiskHigh {
		t.Errorf("Level = %v, want high from primary", a.Level)
	}
	if secondary.CallCount() != 0 {
		t.Error("fallback called despite healthy primary")
	}
}

func TestReasonFallback_PrimaryFails_UsesFallback(t *testing.T) {
	primary := &reasonmock.Provider{Err: errors.New("connection refused")}
	secondary := &reasonmock.Provider{
		Assessment: reason.Assessment{Level: types.RiskMedium},
	}

	f := NewReasonFallback(primary, "ollama", FallbackConfig{})
	f.AddFallback("openai", secondary)

	a, err := f.Assess(context.Background(), reason.Request{CallID: "c1"})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Level != types.RiskMedium {
		t.Errorf("Level = %v, want medium from fallback", a.Level)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = primary %d fallback %d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestReasonFallback_AllFail(t *testing.T) {
	primary := &reasonmock.Provider{Err: errors.New("down")}
	secondary := &reasonmock.Provider{Err: errors.New("also down")}

	f := NewReasonFallback(primary, "ollama", FallbackConfig{})
	f.AddFallback("openai", secondary)

	_, err := f.Assess(context.Background(), reason.Request{CallID: "c1"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestReasonFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &reasonmock.Provider{Err: errors.New("down")}
	secondary := &reasonmock.Provider{}

	f := NewReasonFallback(primary, "ollama", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	f.AddFallback("openai", secondary)

	// First call trips the primary's breaker.
	if _, err := f.Assess(context.Background(), reason.Request{}); err != nil {
		t.Fatalf("Assess: %v", err)
	}
	// Second call must go straight to the fallback.
	if _, err := f.Assess(context.Background(), reason.Request{}); err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open on second call)", primary.CallCount())
	}
	if secondary.CallCount() != 2 {
		t.Errorf("fallback called %d times, want 2", secondary.CallCount())
	}
}
