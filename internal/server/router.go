// Package server wires the HTTP boundary: routing, identity middleware and
// request metadata capture.
package server

import (
	"net/http"

	"github.com/dlemaire/picofeed/internal/auth"
	"github.com/dlemaire/picofeed/internal/server/handlers"
	"github.com/dlemaire/picofeed/internal/server/httpjson"
	"github.com/dlemaire/picofeed/internal/server/ipgeo"
	"github.com/dlemaire/picofeed/internal/server/ratelimit"
)

// Options carries everything the router needs.
type Options struct {
	Services  *handlers.Services
	Resolver  *auth.Resolver
	Escalator *auth.Escalator

	// Geo is optional; without it every looked-up IP stays "unknown".
	Geo *ipgeo.Checker
	// Limiter is optional; without it the like endpoint is unthrottled.
	Limiter *ratelimit.Limiter
}

// NewRouter builds the full route table. Every request passes through
// metadata capture and identity resolution; write endpoints additionally
// require a signed-in user and the admin endpoint an escalated one.
func NewRouter(opts Options) http.Handler {
	svc := opts.Services
	mux := http.NewServeMux()

	mux.Handle("GET /api/health", httpjson.Wrap(svc.Health))
	mux.Handle("GET /api/feed", httpjson.Wrap(svc.Feed))
	mux.Handle("GET /api/me", chain(httpjson.Wrap(svc.Me), requireUser))
	mux.Handle("GET /images/{id}", http.HandlerFunc(svc.ServeImage))

	mux.Handle("POST /api/posts", chain(http.HandlerFunc(svc.CreatePost), requireUser))
	like := chain(httpjson.Wrap(svc.Like), requireUser)
	if opts.Limiter != nil {
		like = ratelimit.Middleware(opts.Limiter)(like)
	}
	mux.Handle("POST /api/posts/{id}/like", like)

	mux.Handle("GET /api/auth/github", http.HandlerFunc(svc.GitHubLogin))
	mux.Handle("GET /api/auth/github/callback", http.HandlerFunc(svc.GitHubCallback))
	mux.Handle("POST /api/auth/logout", http.HandlerFunc(svc.Logout))

	mux.Handle("POST /api/admin/reset", chain(httpjson.Wrap(svc.Reset), requireAdmin(opts.Escalator)))

	return chain(mux, requestMeta(opts.Geo), identify(opts.Resolver))
}
