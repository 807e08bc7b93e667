package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit throttles requests per client IP: at most limit requests in any
// sliding window. The key comes from the resolver so proxied clients are
// counted under their own address.
func RateLimit(resolver *ClientIPResolver, limit int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(retryAfterSeconds(window))

	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(resolver.KeyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimitExceeded, "Too many requests, please try again later")
		}),
	)
}

// retryAfterSeconds rounds the window up to whole seconds, never below one.
func retryAfterSeconds(window time.Duration) int {
	if window <= 0 {
		return 1
	}
	return int((window + time.Second - 1) / time.Second)
}
