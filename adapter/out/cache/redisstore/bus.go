package redisstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Bus adapts Redis Pub/Sub to the InvalidationBus port, grounded on the
// teacher's internal/stream producer/consumer pair but simplified to
// plain Pub/Sub: invalidations are best-effort and at-most-once per
// subscriber, which matches §5's "publish is fire-and-forget" clause.
type Bus struct {
	client *redis.Client
}

// NewBus builds a Bus over client.
func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

// Subscribe starts a goroutine draining the Redis Pub/Sub channel until
// ctx is cancelled or the returned cancel func is called.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	sub := b.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	ch := sub.Channel()
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		close(done)
		sub.Close()
	}
	return cancel, nil
}
