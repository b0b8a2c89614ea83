package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the window document is stored under.
const DefaultRedisKey = "rulesync:window"

// RedisStore keeps the window as one JSON document in Redis, for setups where
// the poller and the syncer do not share a filesystem. A SET replaces the
// whole document at once, so readers never observe a partial window.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis at addr. A ttl of zero disables expiry.
func NewRedisStore(addr, password string, db int, key string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisStore{client: client, key: key, ttl: ttl, logger: logger}, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (Window, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Window{}, nil
		}
		return Window{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	w, err := decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt window document", "key", s.key, "error", err)
		return Window{}, nil
	}
	return w, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, w Window) error {
	data, err := encode(w)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
