package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// RedisStore keeps keys in Redis with a TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	// pendingTTL bounds how long a crashed request can hold a key.
	pendingTTL time.Duration
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("idempotency: ping: %w", err)
	}

	return client, nil
}

// NewRedisStore builds a store on client. A zero ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, keyPrefix: "idempotency:", ttl: ttl, pendingTTL: time.Minute}
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (*Response, error) {
	k := s.keyPrefix + key
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if ok {
		return nil, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return s.Reserve(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: load: %w", err)
	}
	if val == pendingMarker {
		return nil, ErrInFlight
	}
	var resp Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("idempotency: decode: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("idempotency: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
