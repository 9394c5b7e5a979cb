package resilience

import (
	"context"
	"time"

	"hybridcache/core/port/out"
)

// BusGuard wraps an InvalidationBus so a degraded bus doesn't turn every
// publish into a multi-second stall: a CircuitBreaker fails fast once
// publishes keep failing, and while closed/half-open each publish still
// gets a bounded number of retries with exponential backoff before being
// dropped, per the Backpressure clause in §5.
type BusGuard struct {
	bus     out.InvalidationBus
	breaker *CircuitBreaker

	retries int
	backoff time.Duration
}

// NewBusGuard builds a guard around bus. retries/backoff configure the
// per-publish bounded retry; the breaker itself uses
// DefaultCircuitBreakerConfig.
func NewBusGuard(bus out.InvalidationBus, name string, retries int, backoff time.Duration) *BusGuard {
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &BusGuard{
		bus:     bus,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig(name)),
		retries: retries,
		backoff: backoff,
	}
}

// Publish attempts delivery through the breaker. If the breaker is open
// it returns ErrCircuitOpen immediately without attempting the bus at
// all; otherwise it retries up to Guard's bound with exponential
// backoff before giving up.
func (g *BusGuard) Publish(ctx context.Context, topic string, payload []byte) error {
	backoff := g.backoff
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		lastErr = g.breaker.Execute(func() error {
			return g.bus.Publish(ctx, topic, payload)
		})
		if lastErr == nil {
			return nil
		}
		if lastErr == ErrCircuitOpen {
			return lastErr
		}
		if attempt < g.retries {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Subscribe passes through to the wrapped bus unchanged: backpressure
// only applies to the publish path, per §5.
func (g *BusGuard) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	return g.bus.Subscribe(ctx, topic, handler)
}

// Stats exposes the underlying breaker's statistics for the admin
// surface's health endpoint.
func (g *BusGuard) Stats() CircuitBreakerStats {
	return g.breaker.Stats()
}
