// Package notify publishes call state-change events over redis pub/sub so
// connected CRM clients can update their UI in real time.
package notify

import (
	"context"
	"fmt"

	"github.com/gomodule/redigo/redis"
	"github.com/leaseline/callroom/core/calls"
	"github.com/nyaruka/gocommon/jsonx"
)

// channel all call events are published on, subscribers filter by routing
const channel = "callroom:events"

// RedisNotifier is the production calls.Notifier, publishing event envelopes
// on a single redis channel
type RedisNotifier struct {
	rp *redis.Pool
}

// NewRedisNotifier creates a new notifier around the passed in redis pool
func NewRedisNotifier(rp *redis.Pool) *RedisNotifier {
	return &RedisNotifier{rp: rp}
}

// Publish implements calls.Notifier
func (n *RedisNotifier) Publish(ctx context.Context, notification *calls.Notification) error {
	body := jsonx.MustMarshal(notification)

	rc := n.rp.Get()
	defer rc.Close()

	if _, err := redis.DoContext(rc, ctx, "PUBLISH", channel, body); err != nil {
		return fmt.Errorf("error publishing %s notification: %w", notification.Event, err)
	}
	return nil
}
