package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/bissquit/notify-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notify-garden/internal/pkg/httputil"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys requests by client IP address.
func ClientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces the rate limit on incoming requests. Storage
// failures fail open: dropping traffic because a counter backend broke
// would be worse than briefly not limiting.
func Middleware(limiter *SlidingWindow, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				ctxlog.FromContext(r.Context()).Error("rate limit check failed, allowing request", "error", err)
				recordDecision("error")
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				// Refresh the retry hint from read-only state; the
				// consuming check above stays the admission decision.
				if state, stateErr := limiter.Status(r.Context(), key); stateErr == nil {
					state.Allowed = false
					result = state
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(result.RetryAfter().Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				recordDecision("rejected")
				httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
				return
			}

			recordDecision("allowed")
			next.ServeHTTP(w, r)
		})
	}
}
