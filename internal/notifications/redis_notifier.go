package notifications

import (
	"context"
	"encoding/json"
	"fmt"
)

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

// RedisNotifier publishes change events as JSON on a pub/sub channel.
// Nobody listening is not an error.
type RedisNotifier struct {
	pub     Publisher
	channel string
}

func NewRedisNotifier(pub Publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = "users.events"
	}
	return &RedisNotifier{pub: pub, channel: channel}
}

func (n *RedisNotifier) UserChanged(ctx context.Context, ev UserChanged) error {
	payload, err := json.Marshal(ev)

	if err != nil {
		return fmt.Errorf("encode user event: %w", err)
	}

	_, err = n.pub.Publish(ctx, n.channel, payload)

	if err != nil {
		return fmt.Errorf("publish user event: %w", err)
	}

	return nil
}
