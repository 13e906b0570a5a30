package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware rejects requests with 429 once limiter is exhausted.
// Admitted responses carry x-ratelimit-limit-requests; rejected ones also
// carry Retry-After in whole seconds.
func RateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit := limiter.Limit(); limit != rate.Inf {
				perMinute := int(math.Round(float64(limit) * 60))
				w.Header().Set("x-ratelimit-limit-requests", strconv.Itoa(perMinute))
			}

			res := limiter.Reserve()
			if !res.OK() {
				writeError(w, r, http.StatusTooManyRequests, errRateLimited)
				return
			}
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, r, http.StatusTooManyRequests, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PerMinute returns a limiter admitting n requests per minute with a burst
// of n. A non-positive n disables limiting.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}
