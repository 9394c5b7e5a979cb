package cache

import "context"

// Subscribe starts the coordinator's long-running invalidation
// consumer (§4.2): it decodes each bus message, drops anything this
// coordinator published itself (identity self-filtering), and applies
// the remaining eviction to L1. The returned cancel stops consuming.
func (c *HybridCoordinator) Subscribe(ctx context.Context) (cancel func(), err error) {
	if c.bus == nil {
		return func() {}, nil
	}
	return c.bus.Subscribe(ctx, c.topic, func(payload []byte) {
		c.handleInvalidation(ctx, payload)
	})
}

func (c *HybridCoordinator) handleInvalidation(ctx context.Context, payload []byte) {
	msg, err := decodeInvalidation(payload)
	if err != nil {
		return
	}

	c.stats.addInvalidationReceived()

	if c.isSelf(msg.PublisherID) {
		c.stats.addSelfDrop()
		return
	}

	c.evictAffected(ctx, msg.Keys, msg.Prefixes, msg.FlushAll)
	c.stats.addInvalidationApplied()
}
