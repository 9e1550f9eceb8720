package auth

import (
	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/models"
)

// UserLookup is the read surface the resolver needs from the user table.
type UserLookup interface {
	Get(id uint64) (models.User, bool)
}

// Resolver turns an opaque session token into an authenticated principal.
// Resolution re-reads the store on every request; there is no cross-request
// cache.
type Resolver struct {
	users    UserLookup
	sessions *SessionStore
	codec    *TokenCodec
}

// NewResolver creates a resolver. sessions may be nil to skip the
// revocation check (used by tests that only exercise the lookup chain).
func NewResolver(users UserLookup, sessions *SessionStore, codec *TokenCodec) *Resolver {
	return &Resolver{users: users, sessions: sessions, codec: codec}
}

// Resolve maps a session token to an authenticated principal: the token
// must verify and decode to a numeric identifier, the session must still be
// active, and the identifier must exist in the user table. Every failure
// yields UNAUTHENTICATED. Routes that accept anonymous requests treat it as
// a fallthrough; routes that require identity reject on it.
func (r *Resolver) Resolve(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, apierrors.Unauthenticated()
	}
	userID, sessionID, err := r.codec.Parse(tokenString)
	if err != nil {
		return nil, apierrors.Unauthenticated()
	}
	if r.sessions != nil && !r.sessions.IsActive(sessionID) {
		return nil, apierrors.Unauthenticated()
	}
	user, ok := r.users.Get(userID)
	if !ok {
		return nil, apierrors.Unauthenticated()
	}
	return NewPrincipal(user), nil
}
