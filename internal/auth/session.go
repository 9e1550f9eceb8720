// Handles active login sessions, recorded at OAuth callback and checked
// during identity resolution.

package auth

import (
	"time"

	"github.com/dlemaire/picofeed/internal/jsondb"
	"github.com/maruel/ksid"
)

// Session represents an active login session.
type Session struct {
	ID          ksid.ID   `json:"id"`
	UserID      uint64    `json:"user_id"`
	IPAddress   string    `json:"ip_address,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	Created     time.Time `json:"created"`
	ExpiresAt   time.Time `json:"expires_at"`
	RevokedAt   time.Time `json:"revoked_at,omitzero"`
}

// Clone returns a copy of the session.
func (s Session) Clone() Session {
	return s
}

// SessionStore persists login sessions, one more instantiation of the
// generic table.
type SessionStore struct {
	table *jsondb.Table[ksid.ID, Session]
}

// NewSessionStore loads the session table at path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{table: jsondb.Load[ksid.ID, Session](path)}
}

// Create records a new session for userID and returns it.
func (s *SessionStore) Create(userID uint64, ip, countryCode string, ttl time.Duration) (Session, error) {
	now := time.Now()
	session := Session{
		ID:          ksid.NewID(),
		UserID:      userID,
		IPAddress:   ip,
		CountryCode: countryCode,
		Created:     now,
		ExpiresAt:   now.Add(ttl),
	}
	if _, err := s.table.Create(session.ID, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// IsActive reports whether the session exists, is not revoked, and has not
// expired.
func (s *SessionStore) IsActive(id ksid.ID) bool {
	session, ok := s.table.Get(id)
	if !ok {
		return false
	}
	if !session.RevokedAt.IsZero() {
		return false
	}
	return session.ExpiresAt.After(time.Now())
}

// Revoke marks the session as revoked. Revoking an unknown session is a
// no-op.
func (s *SessionStore) Revoke(id ksid.ID) error {
	_, err := s.table.Update(id, func(session *Session) {
		if session.RevokedAt.IsZero() {
			session.RevokedAt = time.Now()
		}
	})
	return err
}

// CountActive returns the number of active sessions.
func (s *SessionStore) CountActive() int {
	rows, err := s.table.Snapshot()
	if err != nil {
		return 0
	}
	now := time.Now()
	count := 0
	for _, session := range rows {
		if session.RevokedAt.IsZero() && session.ExpiresAt.After(now) {
			count++
		}
	}
	return count
}

// Reset clears all sessions. Requires an administrative token.
func (s *SessionStore) Reset(admin *Admin) error {
	return s.table.Clear(admin)
}
