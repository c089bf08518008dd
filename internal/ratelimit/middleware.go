package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"research-task-scheduler/internal/telemetry"
)

// ClientHeader lets API callers identify themselves for rate limiting.
const ClientHeader = "X-Client-ID"

// ClientKey identifies the caller by ClientHeader, falling back to the remote host.
func ClientKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientHeader)); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests with 429 once the caller's bucket is empty.
// Redis errors let the request through.
func Middleware(bucket *TokenBucket, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			allowed, remaining, err := bucket.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("client", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(remaining)))
			if !allowed {
				telemetry.RateLimitRejects.Inc()
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
