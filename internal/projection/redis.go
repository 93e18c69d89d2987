package projection

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const changeChannel = "ledger:account_changed"

// RedisBridge relays account-change events through a Redis pub/sub channel so
// that projections fan out across processes, not just within one. It
// satisfies ledger.Notifier; plug it in where a bare Feed would go.
type RedisBridge struct {
	client *redis.Client
	feed   *Feed
	logger *slog.Logger
}

// NewRedisBridge builds a bridge that publishes into Redis and relays remote
// events into the local feed.
func NewRedisBridge(client *redis.Client, feed *Feed, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{client: client, feed: feed, logger: logger}
}

// AccountChanged publishes the event to Redis. When Redis is down the event
// degrades to a direct local delivery so in-process observers still update.
func (b *RedisBridge) AccountChanged(ctx context.Context, accountID string) {
	if err := b.client.Publish(ctx, changeChannel, accountID).Err(); err != nil {
		if b.logger != nil {
			b.logger.Warn("redis publish failed, delivering locally", "account_id", accountID, "error", err)
		}
		b.feed.AccountChanged(ctx, accountID)
	}
}

// Run consumes the change channel and feeds remote events into the local
// projection feed. Blocks until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, changeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.feed.AccountChanged(ctx, msg.Payload)
		}
	}
}
