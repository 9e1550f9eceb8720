// Package reqctx provides request context utilities for passing request
// metadata and resolved principals between middleware and handlers.
package reqctx

import (
	"context"
	"net/http"
	"strings"

	"github.com/dlemaire/picofeed/internal/auth"
)

// GetClientIP extracts the client IP from an HTTP request, checking
// X-Forwarded-For and X-Real-IP headers for proxied requests.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The leftmost IP is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr, stripping the port.
	addr := r.RemoteAddr
	// IPv6 addresses look like [::1]:8080.
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

// Context keys for request metadata.
type contextKey string

const (
	keyClientIP    contextKey = "clientIP"
	keyCountryCode contextKey = "countryCode"
	keyPrincipal   contextKey = "principal"
	keyAdmin       contextKey = "admin"
)

// WithClientIP adds the client IP to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// ClientIP extracts the client IP from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(keyClientIP).(string); ok {
		return v
	}
	return ""
}

// WithCountryCode adds the country code to the context.
func WithCountryCode(ctx context.Context, cc string) context.Context {
	return context.WithValue(ctx, keyCountryCode, cc)
}

// CountryCode extracts the country code from the context.
func CountryCode(ctx context.Context) string {
	if v, ok := ctx.Value(keyCountryCode).(string); ok {
		return v
	}
	return ""
}

// WithPrincipal adds the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, keyPrincipal, p)
}

// Principal extracts the authenticated principal from the context, or nil
// for an anonymous request.
func Principal(ctx context.Context) *auth.Principal {
	if v, ok := ctx.Value(keyPrincipal).(*auth.Principal); ok {
		return v
	}
	return nil
}

// WithAdmin adds the administrative principal to the context.
func WithAdmin(ctx context.Context, a *auth.Admin) context.Context {
	return context.WithValue(ctx, keyAdmin, a)
}

// Admin extracts the administrative principal from the context, or nil when
// the request did not escalate.
func Admin(ctx context.Context) *auth.Admin {
	if v, ok := ctx.Value(keyAdmin).(*auth.Admin); ok {
		return v
	}
	return nil
}
