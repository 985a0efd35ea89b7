package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow: ZSET с отметками времени в окне, счётчик даёт уникальные члены.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current >= limit then
		return 0
	end

	local counter = redis.call('INCR', key .. ':n')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local ttl = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, ttl)
	redis.call('EXPIRE', key .. ':n', ttl)
	return 1
`)

// Redis — лимитер поверх общего Redis; окно считается одинаково для всех экземпляров.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	window    time.Duration
}

func NewRedis(client redis.UniversalClient, keyPrefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix, limit: limit, window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	now := time.Now()
	res, err := slidingWindow.Run(ctx, r.client, []string{r.keyPrefix + key},
		now.UnixMilli(), now.Add(-r.window).UnixMilli(), r.limit, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}

func (r *Redis) Forget(ctx context.Context, key string) error {
	k := r.keyPrefix + key
	return r.client.Del(ctx, k, k+":n").Err()
}

// Ping проверяет доступность Redis при старте.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
