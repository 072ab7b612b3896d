package upstream

import (
	"testing"
	"time"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		RecoveryTimeout:  10 * time.Second,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %s, want closed after one failure", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}
	if cb.AllowRequest() {
		t.Error("open breaker allowed a request")
	}

	now = now.Add(10 * time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half-open", cb.State())
	}
	if !cb.AllowRequest() {
		t.Error("half-open breaker rejected the probe")
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want open after failed probe", cb.State())
	}

	now = now.Add(10 * time.Second)
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Errorf("state = %s, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	cb.RecordFailure()
	cb.RecordFailure()
	if !cb.AllowRequest() {
		t.Error("disabled breaker rejected a request")
	}
}
