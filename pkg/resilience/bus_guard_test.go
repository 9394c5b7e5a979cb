package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyBus struct {
	failCount int
	calls     int
}

func (b *flakyBus) Publish(_ context.Context, _ string, _ []byte) error {
	b.calls++
	if b.calls <= b.failCount {
		return errors.New("dial: connection refused")
	}
	return nil
}

func (b *flakyBus) Subscribe(_ context.Context, _ string, _ func(payload []byte)) (func(), error) {
	return func() {}, nil
}

func TestBusGuardPublishSucceedsAfterRetries(t *testing.T) {
	bus := &flakyBus{failCount: 2}
	guard := NewBusGuard(bus, "test-bus", 3, time.Millisecond)

	if err := guard.Publish(context.Background(), "topic", []byte("payload")); err != nil {
		t.Fatalf("Publish() error = %v, want nil after recovering within retry budget", err)
	}
	if bus.calls != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", bus.calls)
	}
}

func TestBusGuardPublishGivesUpAfterExhaustingRetries(t *testing.T) {
	bus := &flakyBus{failCount: 100}
	guard := NewBusGuard(bus, "test-bus", 2, time.Millisecond)

	err := guard.Publish(context.Background(), "topic", []byte("payload"))
	if err == nil {
		t.Fatal("Publish() error = nil, want error after exhausting retries")
	}
	if bus.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", bus.calls)
	}
}

func TestBusGuardOpensCircuitAndFailsFast(t *testing.T) {
	bus := &flakyBus{failCount: 1000}
	guard := NewBusGuard(bus, "test-bus", 0, time.Millisecond)
	guard.breaker = NewCircuitBreaker(&CircuitBreakerConfig{
		Name:               "test-bus",
		FailureThreshold:   1,
		SuccessThreshold:   1,
		Timeout:            time.Hour,
		MaxHalfOpenRequest: 1,
	})

	// First publish exhausts its retry budget and opens the breaker.
	guard.Publish(context.Background(), "topic", []byte("payload"))
	callsAfterFirst := bus.calls

	// The breaker should now be open, so a second Publish must fail fast
	// without reaching the bus again.
	err := guard.Publish(context.Background(), "topic", []byte("payload"))
	if err != ErrCircuitOpen {
		t.Fatalf("Publish() error = %v, want ErrCircuitOpen", err)
	}
	if bus.calls != callsAfterFirst {
		t.Errorf("calls grew from %d to %d, want breaker to short-circuit before reaching the bus", callsAfterFirst, bus.calls)
	}
}

func TestBusGuardSubscribePassesThrough(t *testing.T) {
	bus := &flakyBus{}
	guard := NewBusGuard(bus, "test-bus", 3, time.Millisecond)

	cancel, err := guard.Subscribe(context.Background(), "topic", func([]byte) {})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()
}
