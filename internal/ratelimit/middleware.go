package ratelimit

import (
	"encoding/json"
	"log/slog"
	"loginguard/internal/models"
	"math"
	"net/http"
	"strconv"
)

// KeyFunc returns the bucket key for a request, normally the client IP.
type KeyFunc func(r *http.Request) string

// Middleware returns HTTP middleware that enforces limiter per key. Every
// response carries X-RateLimit-* headers; denied requests get a 429 with
// Retry-After and the standard JSON error body.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, info := limiter.Allow(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !allowed {
				retryAfter := max(int64(math.Ceil(info.RetryAfter.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("too_many_requests", models.ErrorCodeTooManyRequests)
				errorResp.Message = models.MessageTooManyRequests
				json.NewEncoder(w).Encode(errorResp)

				slog.WarnContext(r.Context(), "Request burst limit exceeded",
					"key", key,
					"limit", info.Limit,
					"retry_after", retryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
