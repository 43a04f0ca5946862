package redisx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Limiter struct {
	R *Client
}

func NewLimiter(r *Client) *Limiter { return &Limiter{R: r} }

// AllowSliding counts one hit for key; the window restarts on every hit.
func (l *Limiter) AllowSliding(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := "rl:" + key
	pipe := l.R.R.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// LimitHTTP rejects requests over limit per window. Limiter errors fail open.
func (l *Limiter) LimitHTTP(limit int64, window time.Duration, keyFn func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFn(r)
		if key == "" {
			writeLimitError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
			return
		}
		ok, n, err := l.AllowSliding(r.Context(), key, limit, window)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			log.Debug().Str("key", key).Int64("count", n).Int64("limit", limit).Msg("rate limited")
			writeLimitError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many messages, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeLimitError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
