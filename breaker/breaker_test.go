package breaker

import (
	"testing"
	"time"
)

func TestOpensAfterThirdConsecutiveFailure(t *testing.T) {
	r := New()
	host := "https://h.example"

	for i := 0; i < Threshold-1; i++ {
		if tripped := r.RecordFailure(host); tripped {
			t.Fatalf("should not trip before threshold, failure %d", i+1)
		}
	}
	if !r.Allow(host) {
		t.Fatal("should still allow below threshold")
	}

	tripped := r.RecordFailure(host)
	if !tripped {
		t.Fatal("expected CLOSED->OPEN transition on 3rd failure")
	}
	if r.Allow(host) {
		t.Fatal("expected Allow to be false once OPEN")
	}
	if r.State(host) != Open {
		t.Fatalf("state = %v, want OPEN", r.State(host))
	}
}

func TestHalfOpenAfterResetTimeoutThenClose(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := New(WithClock(clock))
	host := "https://h.example"

	for i := 0; i < Threshold; i++ {
		r.RecordFailure(host)
	}
	if r.State(host) != Open {
		t.Fatalf("expected OPEN after %d failures", Threshold)
	}

	now = now.Add(ResetTimeout - time.Second)
	if r.Allow(host) {
		t.Fatal("should still be OPEN just before reset timeout elapses")
	}

	now = now.Add(2 * time.Second)
	if !r.Allow(host) {
		t.Fatal("expected HALF_OPEN probe to be allowed after reset timeout")
	}
	if r.State(host) != HalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN", r.State(host))
	}

	r.RecordSuccess(host)
	if r.State(host) != Closed {
		t.Fatalf("state = %v, want CLOSED after successful probe", r.State(host))
	}
}

func TestHalfOpenFailureReopensAndResetsWindow(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := New(WithClock(clock))
	host := "https://h.example"

	for i := 0; i < Threshold; i++ {
		r.RecordFailure(host)
	}
	now = now.Add(ResetTimeout + time.Second)
	r.Allow(host) // triggers the lazy OPEN->HALF_OPEN transition

	r.RecordFailure(host) // probe fails
	if r.State(host) != Open {
		t.Fatalf("state = %v, want OPEN after failed probe", r.State(host))
	}

	now = now.Add(ResetTimeout - time.Second)
	if r.Allow(host) {
		t.Fatal("failed probe must reset the 1h window, not reuse the original deadline")
	}
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	r := New()
	host := "https://h.example"
	for i := 0; i < Threshold; i++ {
		r.RecordFailure(host)
	}

	saved := r.Snapshot()
	ps, ok := saved[host]
	if !ok || ps.State != Open {
		t.Fatalf("expected persisted OPEN state for %s, got %+v", host, saved)
	}

	r2 := New()
	r2.Restore(saved)
	if r2.State(host) != Open {
		t.Fatalf("restored state = %v, want OPEN", r2.State(host))
	}
}
