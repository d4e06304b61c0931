package http

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsRecorder counts rate-limit decisions in Redis hashes: a
// cumulative total, a per-minute series with TTL, and per-route counters.
type RedisStatsRecorder struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStatsRecorder(rdb *redis.Client, prefix string) *RedisStatsRecorder {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "registrar:ratelimit"
	}
	return &RedisStatsRecorder{
		rdb:    rdb,
		prefix: prefix,
		ttl:    24 * time.Hour,
	}
}

func (s *RedisStatsRecorder) Record(ctx context.Context, key string, allowed bool, method, path string) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	field := "denied"
	if allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, time.Now().UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.Expire(ctx, bucketKey, s.ttl)

	route := strings.TrimSpace(method + " " + path)
	if route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}
