package respcache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "respcache:"

// RedisStore is the shared backend for multi-process deployments, so an
// invalidation issued by one instance is observed by all of them. Faults
// are logged and degrade to misses; redis being down never surfaces to a
// request.
type RedisStore struct {
	counters
	client     *redis.Client
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewRedisStore constructs a RedisStore. defaultTTL <= 0 falls back to
// DefaultTTL.
func NewRedisStore(client *redis.Client, defaultTTL time.Duration, logger *slog.Logger) *RedisStore {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &RedisStore{client: client, defaultTTL: defaultTTL, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.fault("get", err)
		}
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return payload, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		s.fault("set", err)
		return
	}
	s.sets.Add(1)
}

func (s *RedisStore) Delete(ctx context.Context, key string) int {
	n, err := s.client.Del(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		s.fault("delete", err)
		return 0
	}
	s.deletes.Add(uint64(n))
	return int(n)
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) int {
	removed := 0
	match := redisKeyPrefix + escapeRedisGlob(pattern)
	iter := s.client.Scan(ctx, 0, match, 200).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			s.fault("delete pattern", err)
			continue
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		s.fault("scan", err)
	}
	s.deletes.Add(uint64(removed))
	return removed
}

func (s *RedisStore) Clear(ctx context.Context) {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			s.fault("clear", err)
		}
	}
	if err := iter.Err(); err != nil {
		s.fault("scan", err)
	}
}

func (s *RedisStore) fault(op string, err error) {
	if s.logger != nil {
		s.logger.Warn("response cache fault, serving as miss", slog.String("op", op), slog.Any("error", err))
	}
}

// escapeRedisGlob keeps `*` as the only wildcard: the MATCH syntax also
// assigns meaning to ?, [ and ], which may occur literally in serialized
// query segments.
func escapeRedisGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
