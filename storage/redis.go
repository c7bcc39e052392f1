package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

const maxUpdateRetries = 16

// RedisStore implements a key-value store on Redis.
// Updates run as optimistic transactions using WATCH/MULTI/EXEC.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewRedisStore connects to Redis and verifies the connection.
// Keys are namespaced with prefix.
func NewRedisStore(opts *redis.Options, prefix string, log *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return &RedisStore{
		client:      client,
		prefix:      prefix,
		log:         log,
		locationURI: fmt.Sprintf("redis://%s/%d?prefix=%s", opts.Addr, opts.DB, prefix),
	}, nil
}

func (r *RedisStore) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fail to get key %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("fail to set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("fail to delete key %s: %w", key, err)
	}
	return nil
}

// Update retries the read-modify-write until no concurrent writer touched the key.
func (r *RedisStore) Update(ctx context.Context, key string, fn interfaces.UpdateFunc) error {
	fullKey := r.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			found = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, fullKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.log.Debug("Concurrent update detected, retrying", slog.String("key", key), slog.Int("attempt", i+1))
			continue
		}
		return err
	}
	return fmt.Errorf("update of %s failed after %d attempts", key, maxUpdateRetries)
}

func (r *RedisStore) Available(ctx context.Context) bool {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.log.Debug("Redis unavailable", "err", err)
		return false
	}
	return true
}

func (r *RedisStore) Name() string {
	return fmt.Sprintf("redis-%s", r.client.Options().Addr)
}

func (r *RedisStore) LocationURI() string {
	return r.locationURI
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
