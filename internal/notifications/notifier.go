package notifications

import (
	"context"
	"runtime/debug"

	"feedline/internal/observability"

	"github.com/redis/go-redis/v9"
)

// FeedRedisChannel carries serialized feed events between instances.
const FeedRedisChannel = "feed:posts"

// Notifier publishes feed payloads into Redis and subscribes to them.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether a Redis client backs the notifier.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishFeed sends payload to every subscribed instance.
func (n *Notifier) PublishFeed(ctx context.Context, payload []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, FeedRedisChannel, payload).Err()
}

// StartFeedSubscriber subscribes to FeedRedisChannel and calls onMessage for
// each payload until ctx is cancelled. The subscription is confirmed before it returns.
func (n *Notifier) StartFeedSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, FeedRedisChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in feed subscriber",
								"panic", r, "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Payload)
				}()
			}
		}
	}()

	return nil
}
