/*
Package idempotency remembers the responses of requests that carried an
Idempotency-Key header, so a client retrying after a timeout gets the
original response instead of recording a second usage.

PROTOCOL:
  1. Reserve(key): claims the key. If a completed response is stored it
     is returned; if another request holds the key, ErrInFlight.
  2. Complete(key, resp): stores the response for the TTL.
  3. Release(key): frees a claimed key when the request failed in a way
     that is safe to retry.

IMPLEMENTATIONS:
  - RedisStore: shared across instances (REDIS_ADDR)
  - MemoryStore: single process, used when no Redis is configured

SEE ALSO:
  - api/idempotency.go: HTTP middleware
*/
package idempotency

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long completed responses are replayed.
const DefaultTTL = 24 * time.Hour

// ErrInFlight is returned when the key is held by a request still running.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Response is a stored HTTP response.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store persists idempotency keys.
type Store interface {
	// Reserve claims key. A nil Response means the caller owns the key.
	Reserve(ctx context.Context, key string) (*Response, error)
	Complete(ctx context.Context, key string, resp Response) error
	Release(ctx context.Context, key string) error
}
