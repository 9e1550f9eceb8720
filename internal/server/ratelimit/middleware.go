// Provides HTTP middleware for per-client-IP rate limiting.

package ratelimit

import (
	"net/http"
	"strconv"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/server/httpjson"
	"github.com/dlemaire/picofeed/internal/server/reqctx"
)

// WriteHeaders writes rate limit headers to the response. Headers are
// written on all responses, success and 429 alike.
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// Middleware limits requests per client IP using the given limiter.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := reqctx.ClientIP(r.Context())
			if ip == "" {
				ip = reqctx.GetClientIP(r)
			}
			result := l.Allow("ip:" + ip)
			WriteHeaders(w, result)
			if !result.Allowed {
				httpjson.WriteError(w, apierrors.RateLimited(int(result.RetryAfter.Seconds())))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
