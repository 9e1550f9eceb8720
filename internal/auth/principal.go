// Package auth implements the request-scoped identity resolution chain:
// session token to authenticated principal, authenticated principal to
// administrative principal.
package auth

import (
	"github.com/dlemaire/picofeed/internal/models"
)

// Principal is a resolved authenticated identity. It is a read-only
// projection of the stored user record, built fresh per request and never
// persisted.
type Principal struct {
	ID          uint64 `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NewPrincipal projects a stored user into a principal. The display name
// falls back to the login handle when no name is set.
func NewPrincipal(u models.User) *Principal {
	name := u.Name
	if name == "" {
		name = u.Login
	}
	return &Principal{
		ID:          u.ID,
		DisplayName: name,
		AvatarURL:   u.AvatarURL,
	}
}

// Admin wraps a Principal that satisfied the administrative predicate. It is
// the only implementation of jsondb.AdminToken, so code holding one provably
// went through escalation.
type Admin struct {
	Principal
}

// AdminID implements jsondb.AdminToken.
func (a *Admin) AdminID() uint64 {
	return a.ID
}

// Escalator decides whether an authenticated principal also carries
// administrative privilege.
type Escalator struct {
	admins map[uint64]struct{}
}

// NewEscalator builds an escalator from the configured administrator id set.
func NewEscalator(ids []uint64) *Escalator {
	admins := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		admins[id] = struct{}{}
	}
	return &Escalator{admins: admins}
}

// Escalate returns an administrative principal when p's identifier is in the
// configured set. A false return is a fallthrough outcome, not an error:
// callers that do not require admin rights proceed without the capability.
func (e *Escalator) Escalate(p *Principal) (*Admin, bool) {
	if p == nil {
		return nil, false
	}
	if _, ok := e.admins[p.ID]; !ok {
		return nil, false
	}
	return &Admin{Principal: *p}, true
}
