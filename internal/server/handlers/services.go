// Package handlers implements the HTTP API endpoints.
package handlers

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/dlemaire/picofeed/internal/auth"
	"github.com/dlemaire/picofeed/internal/storage"
)

// Services groups the dependencies shared by all handlers.
type Services struct {
	Users    *storage.UserStore
	Posts    *storage.PostStore
	Sessions *auth.SessionStore
	Codec    *auth.TokenCodec
	OAuth    *oauth2.Config

	// BaseURL is the externally visible origin, used for redirects and to
	// decide whether cookies are marked Secure.
	BaseURL    string
	SessionTTL time.Duration
}
