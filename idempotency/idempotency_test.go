package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func stores(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"redis":  redisStore,
		"memory": NewMemoryStore(time.Hour),
	}
}

func TestStore_ReserveCompleteReplay(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// GIVEN: a fresh key
			resp, err := s.Reserve(ctx, "user-1:key-1")
			require.NoError(t, err)
			assert.Nil(t, resp, "first reserve owns the key")

			// WHEN: a second request arrives before completion
			_, err = s.Reserve(ctx, "user-1:key-1")
			assert.ErrorIs(t, err, ErrInFlight)

			// THEN: after completion the stored response is replayed
			require.NoError(t, s.Complete(ctx, "user-1:key-1", Response{
				Status: 201, ContentType: "application/json", Body: []byte(`{"id":"u1"}`),
			}))
			resp, err = s.Reserve(ctx, "user-1:key-1")
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, 201, resp.Status)
			assert.JSONEq(t, `{"id":"u1"}`, string(resp.Body))
		})
	}
}

func TestStore_ReleaseFreesKey(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Reserve(ctx, "k")
			require.NoError(t, err)
			require.NoError(t, s.Release(ctx, "k"))

			resp, err := s.Reserve(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, resp)
		})
	}
}

func TestRedisStore_CompletedKeyExpires(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "k", Response{Status: 200}))

	mr.FastForward(2 * time.Hour)

	resp, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp, "expired key can be claimed again")
}

func TestMemoryStore_PendingKeyExpires(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Reserve(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	resp, err := s.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp, "abandoned reservation is reclaimed")
}
