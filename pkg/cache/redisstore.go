package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// RedisKeyPrefix namespaces cache documents in Redis.
	RedisKeyPrefix = "fpl:cache:"

	redisBackend = "redis"

	redisScanCount = 100
)

// RedisStore persists entries in Redis using the same JSON document as FileStore.
// It gives no coherence guarantees between processes sharing the database.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRedisStore creates a Redis-backed store.
//
// retention is how long an entry is kept after its TTL elapses, so expired
// entries remain available as a degraded fallback. Zero keeps entries until
// they are replaced, deleted or purged.
func NewRedisStore(redisClient *redis.Client, retention time.Duration, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

func redisKey(key Key) string {
	return RedisKeyPrefix + key.String()
}

// Get retrieves a cache entry by key.
func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: malformed key %q", ErrInvalidKeyInput, key)
	}

	data, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			StoreReads.WithLabelValues(redisBackend, "miss").Inc()
			return nil, ErrNotFound
		}
		StoreReads.WithLabelValues(redisBackend, "error").Inc()
		StoreErrors.WithLabelValues(redisBackend, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(key, data)
	if err != nil {
		StoreReads.WithLabelValues(redisBackend, "corrupt").Inc()
		s.logger.Debug().Err(err).Str("key", key.String()).Msg("Corrupt cache document")
		return nil, err
	}

	StoreReads.WithLabelValues(redisBackend, "hit").Inc()
	return entry, nil
}

// Put stores the entry. SET replaces the previous value atomically.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		StoreErrors.WithLabelValues(redisBackend, "put").Inc()
		return err
	}

	var expiration time.Duration
	if s.retention > 0 {
		expiration = entry.ExpiresAt().Add(s.retention).Sub(s.now())
		if expiration <= 0 {
			// Past retention already: nothing worth keeping, including any previous entry
			if err := s.redis.Del(ctx, redisKey(entry.Key)).Err(); err != nil {
				StoreErrors.WithLabelValues(redisBackend, "put").Inc()
				return fmt.Errorf("redis del: %w", err)
			}
			return nil
		}
	}

	if err := s.redis.Set(ctx, redisKey(entry.Key), data, expiration).Err(); err != nil {
		StoreErrors.WithLabelValues(redisBackend, "put").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	StoreWrites.WithLabelValues(redisBackend).Inc()
	EntrySize.WithLabelValues(redisBackend).Observe(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, redisKey(key)).Err(); err != nil {
		StoreErrors.WithLabelValues(redisBackend, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// ListExpired scans the cache prefix and returns keys whose TTL had elapsed at now.
func (s *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]Key, error) {
	var expired []Key
	err := s.scan(ctx, func(keys []string) error {
		values, err := s.redis.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			key := Key(strings.TrimPrefix(keys[i], RedisKeyPrefix))
			entry, err := decodeEntry(key, []byte(raw))
			if err != nil {
				continue
			}
			if entry.IsExpiredAt(now) {
				expired = append(expired, key)
			}
		}
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(redisBackend, "list").Inc()
		return nil, err
	}
	return expired, nil
}

// Purge deletes every document under the cache prefix.
func (s *RedisStore) Purge(ctx context.Context) error {
	removed := 0
	err := s.scan(ctx, func(keys []string) error {
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		removed += len(keys)
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(redisBackend, "purge").Inc()
		return err
	}

	s.logger.Info().Int("entries", removed).Msg("Cache purged")
	return nil
}

// Stats counts documents under the cache prefix and sums their sizes.
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.scan(ctx, func(keys []string) error {
		pipe := s.redis.Pipeline()
		cmds := make([]*redis.IntCmd, len(keys))
		for i, k := range keys {
			cmds[i] = pipe.StrLen(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis strlen: %w", err)
		}
		for _, cmd := range cmds {
			stats.Entries++
			stats.Bytes += cmd.Val()
		}
		return nil
	})
	return stats, err
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// scan walks the cache prefix in batches.
func (s *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, RedisKeyPrefix+"*", redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
