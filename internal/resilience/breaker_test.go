package resilience

import (
	"errors"
	"testing"
	"time"
)

var errRelayDown = errors.New("relay unavailable")

func TestBreakerClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !called {
		t.Fatal("fn not called while closed")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errRelayDown })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("want ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errRelayDown })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("want ErrCircuitOpen before cooldown, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !called {
		t.Fatal("probe not admitted after cooldown")
	}

	b.mu.Lock()
	if b.state != breakerClosed {
		t.Fatalf("state %d after successful probe, want closed", b.state)
	}
	b.mu.Unlock()
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errRelayDown })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errRelayDown })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("want ErrCircuitOpen after failed probe, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Execute(func() error { return errRelayDown })
	_ = b.Execute(func() error { return errRelayDown })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errRelayDown })
	_ = b.Execute(func() error { return errRelayDown })

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !called {
		t.Fatal("breaker tripped despite intervening success")
	}
}
