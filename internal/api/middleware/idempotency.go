package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	inProgressTTL = 10 * time.Second
	completedTTL  = 24 * time.Hour
)

// Idempotency guards the publish endpoints against client retries. A
// request carrying an Idempotency-Key header is only accepted once; repeats
// within the completed TTL get a conflict instead of a second publish.
// This is a producer-side convenience; the consumer-side dedup ledger is
// what actually enforces at-most-once processing.
func Idempotency(redisClient *redis.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("publish:idempotency:%s", key)
			ctx := r.Context()

			if _, err := redisClient.Get(ctx, idemKey).Result(); err == nil {
				w.Header().Set("X-Idempotency-Hit", "true")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "request already processed"}`))
				return
			} else if err != redis.Nil {
				// Redis unavailable: let the request through, the consumer
				// ledger still dedups downstream.
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := redisClient.SetNX(ctx, idemKey, "PROCESSING", inProgressTTL).Result()
			if err != nil || !acquired {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "concurrent request"}`))
				return
			}

			next.ServeHTTP(w, r)

			redisClient.Set(ctx, idemKey, "COMPLETED", completedTTL)
		})
	}
}
