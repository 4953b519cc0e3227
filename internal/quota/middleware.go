package quota

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fruitsalade/explorer/internal/metrics"
)

// KeyFunc names the client a request is counted against.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests with 429 once the client's bucket is empty.
// /health is never limited.
func Middleware(limiter *RateLimiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			k := key(r)
			if limiter.Allow(k) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordRateLimitHit()
			w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter(k)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": "rate limit exceeded",
				"code":  http.StatusTooManyRequests,
			})
		})
	}
}
