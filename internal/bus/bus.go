// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
)

// Bus wraps the shared Redis client. One instance per process.
type Bus struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg config.Redis) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("bus")
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis backplane")

	return &Bus{rdb: rdb, logger: logger}, nil
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb, logger: log.WithComponent("bus")}
}

// Ping verifies the backplane is reachable. Used by health probes.
func (b *Bus) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.rdb.Close()
}

// Publish marshals v to JSON and publishes it on the channel.
func (b *Bus) Publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", channel, err)
	}
	err = b.rdb.Publish(ctx, channel, data).Err()
	metrics.IncBusPublish("pubsub", err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription on the given channels. The caller
// owns the returned subscription and must Close it.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channels...)
}

// SetJSON stores a JSON-marshalled value under key. ttl of zero means no
// expiry (explicit deletes per the ownership rules).
func (b *Bus) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.rdb.Set(ctx, key, data, ttl).Err()
}

// GetJSON loads key into out. Returns false when the key does not exist.
func (b *Bus) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := b.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetBytes stores raw bytes under key.
func (b *Bus) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, data, ttl).Err()
}

// GetBytes loads raw bytes. Returns false when the key does not exist.
func (b *Bus) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

// Delete removes the given keys.
func (b *Bus) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.rdb.Del(ctx, keys...).Err()
}

// ScanKeys returns every key matching the pattern. Cursor-based so large
// keyspaces do not block the server.
func (b *Bus) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := b.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// HSetJSON stores a JSON value under one field of a hash.
func (b *Bus) HSetJSON(ctx context.Context, key, field string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", key, field, err)
	}
	return b.rdb.HSet(ctx, key, field, data).Err()
}

// HGetAll returns every field of a hash as raw JSON strings.
func (b *Bus) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out, err := b.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	return out, nil
}

// HDelete removes fields from a hash.
func (b *Bus) HDelete(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.rdb.HDel(ctx, key, fields...).Err()
}
