package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// EventChannel is the Pub/Sub channel carrying ledger events as JSON.
const EventChannel = "ledger:events"

// eventStream is the durable copy of the channel for consumers that need
// replay; XADD trims it to roughly streamMaxLen entries.
const eventStream = "ledger:events:stream"

const streamMaxLen int64 = 10000

// EventBus fans ledger events out over Redis: Pub/Sub for live subscribers
// and a capped stream for catch-up reads.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends an encoded event to the live channel and appends it to the
// durable stream.
func (b *EventBus) Publish(ctx context.Context, payload []byte) error {
	if err := b.rdb.Publish(ctx, EventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", EventChannel, err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", eventStream, err)
	}
	return nil
}

// Subscribe returns a read-only channel of event payloads from the live
// channel. The subscription closes when the context is cancelled; the
// returned channel is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, EventChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", EventChannel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
