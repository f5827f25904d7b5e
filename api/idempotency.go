package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Cronanaut/veronagrow/idempotency"
)

// IdempotencyHeader is the request header naming a client retry key.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency store.
const ReplayedHeader = "Idempotent-Replayed"

// Idempotent replays the stored response of a request already seen with the
// same Idempotency-Key. Keys are scoped to the authenticated owner. Only 2xx
// responses are stored; anything else means nothing was committed and the
// key is released for a retry.
func Idempotent(store idempotency.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(IdempotencyHeader)
			if header == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := string(OwnerFrom(r.Context())) + ":" + r.Method + ":" + r.URL.Path + ":" + header

			stored, err := store.Reserve(r.Context(), key)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				writeError(w, http.StatusConflict, "request with this idempotency key is in progress", nil)
				return
			case err != nil:
				logger.Error("idempotency store unavailable", slog.Any("error", err))
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable", nil)
				return
			case stored != nil:
				w.Header().Set("Content-Type", stored.ContentType)
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Body)
				return
			}

			rec := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= 200 && rec.status < 300 {
				resp := idempotency.Response{
					Status:      rec.status,
					ContentType: w.Header().Get("Content-Type"),
					Body:        rec.body.Bytes(),
				}
				if err := store.Complete(ctx, key, resp); err != nil {
					logger.Warn("failed to store idempotent response", slog.Any("error", err))
				}
				return
			}
			if err := store.Release(ctx, key); err != nil {
				logger.Warn("failed to release idempotency key", slog.Any("error", err))
			}
		})
	}
}

// bufferedResponse writes through to the client and keeps a copy of the body.
type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(status int) {
	b.status = status
	b.ResponseWriter.WriteHeader(status)
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}
