package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic retries when another instance touches the
// hash between WATCH and EXEC.
const maxTxRetries = 8

// RedisStore keeps the record in a single Redis hash. Update uses
// WATCH/MULTI/EXEC so two instances never interleave a read-modify-write.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "activityledger:").
	Prefix string
	// PoolSize is the connection pool size (default: 4).
	PoolSize int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client, e.g. one pointed at
// miniredis in tests.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "activityledger:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key() string {
	return s.prefix + "ledger"
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, keys ...string) (Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		all, err := s.client.HGetAll(ctx, s.key()).Result()
		if err != nil {
			return nil, fmt.Errorf("hgetall: %w: %w", ErrStoreUnavailable, err)
		}
		return Record(all), nil
	}

	values, err := s.client.HMGet(ctx, s.key(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget: %w: %w", ErrStoreUnavailable, err)
	}
	rec := make(Record, len(keys))
	for i, v := range values {
		if str, ok := v.(string); ok {
			rec[keys[i]] = str
		}
	}
	return rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(rec) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key(), hashValues(rec)).Err(); err != nil {
		return fmt.Errorf("hset: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, fn UpdateFunc) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key := s.key()
	var fnErr error
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		changes, err := fn(Record(current))
		if err != nil {
			fnErr = err
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hashValues(changes))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		fnErr = nil
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if fnErr != nil {
			return fnErr
		}
		return fmt.Errorf("watch %s: %w: %w", key, ErrStoreUnavailable, err)
	}
	return ErrConflict
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func hashValues(rec Record) map[string]interface{} {
	values := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		values[k] = v
	}
	return values
}
