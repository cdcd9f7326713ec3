// Provides HTTP middleware for rate limiting.

package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	apierrors "github.com/l3viathan/apy4i/internal/errors"
	"github.com/l3viathan/apy4i/internal/utils"
)

// WriteHeaders writes rate limit headers to the response.
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// Middleware limits requests per client IP under the given tier name.
func Middleware(l *Limiter, tier string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := l.Allow("ip:" + clientIP(r) + ":" + tier)
		WriteHeaders(w, result)
		if !result.Allowed {
			utils.RespondError(w, apierrors.TooManyRequests().WithDetail("retry_after", int(result.RetryAfter.Seconds())))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
