// Package notify publishes sample status changes. Delivery to end users
// (push, e-mail, dashboards) subscribes to the channel elsewhere.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"parascope/api/internal/sample"

	"github.com/redis/go-redis/v9"
)

type Nop struct{}

func (Nop) StatusChanged(context.Context, sample.Event) error { return nil }

type Redis struct {
	rdb     *redis.Client
	channel string
}

// NewRedis connects and pings.
func NewRedis(addr, channel string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, channel), nil
}

func NewRedisWithClient(rdb *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "sample-status"
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) StatusChanged(ctx context.Context, ev sample.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

func (r *Redis) Close() error { return r.rdb.Close() }
