package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tradepulse-go/internal/signal"
)

const (
	redisKeyPrefix     = "signal:"
	redisChannelPrefix = "signals."
)

// RedisSink stores the latest signal per (strategy, symbol) and publishes every signal
// on a per-symbol channel.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink wraps client. A non-positive ttl keeps keys forever.
func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSink{client: client, ttl: ttl}
}

// RedisKey is the key holding the latest signal of strategy for symbol.
func RedisKey(strategy, symbol string) string { return redisKeyPrefix + strategy + ":" + symbol }

// RedisChannel is the pub/sub channel signals for symbol are published on.
func RedisChannel(symbol string) string { return redisChannelPrefix + symbol }

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Publish(ctx context.Context, s signal.Signal) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, RedisKey(s.Strategy, s.Symbol), payload, r.ttl)
	pipe.Publish(ctx, RedisChannel(s.Symbol), payload)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisSink) Close() error { return r.client.Close() }
