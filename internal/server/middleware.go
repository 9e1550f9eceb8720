package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dlemaire/picofeed/internal/auth"
	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/server/handlers"
	"github.com/dlemaire/picofeed/internal/server/httpjson"
	"github.com/dlemaire/picofeed/internal/server/ipgeo"
	"github.com/dlemaire/picofeed/internal/server/reqctx"
)

// TokenFromRequest extracts the session token from the session cookie or,
// failing that, from an Authorization: Bearer header. Returns "" when
// neither is present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(handlers.SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// requestMeta records the client IP and its country code on the request
// context before any handler runs.
func requestMeta(geo *ipgeo.Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := reqctx.GetClientIP(r)
			ctx := reqctx.WithClientIP(r.Context(), ip)
			country, lookup := ipgeo.Classify(ip)
			if lookup && geo != nil {
				if cc := geo.CountryCode(ip); cc != "" {
					country = cc
				} else {
					slog.DebugContext(ctx, "Country lookup failed", "ip", ip)
				}
			}
			if country == "" {
				country = "unknown"
			}
			ctx = reqctx.WithCountryCode(ctx, country)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// identify resolves the request's token into a principal when one is
// presented. Requests without a valid token pass through anonymously;
// gating happens in requireUser and requireAdmin.
func identify(resolver *auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token != "" {
				if p, err := resolver.Resolve(token); err == nil {
					r = r.WithContext(reqctx.WithPrincipal(r.Context(), p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireUser rejects requests that did not resolve to a principal.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqctx.Principal(r.Context()) == nil {
			httpjson.WriteError(w, apierrors.Unauthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects requests whose principal cannot be escalated. The
// escalated admin is placed on the context for handlers that need the
// capability token.
func requireAdmin(escalator *auth.Escalator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := reqctx.Principal(r.Context())
			if p == nil {
				httpjson.WriteError(w, apierrors.Unauthenticated())
				return
			}
			admin, ok := escalator.Escalate(p)
			if !ok {
				httpjson.WriteError(w, apierrors.Unauthorized())
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithAdmin(r.Context(), admin)))
		})
	}
}

// chain applies middlewares to h, first middleware outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
