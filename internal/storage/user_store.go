package storage

import (
	"log/slog"
	"slices"

	"github.com/dlemaire/picofeed/internal/auth"
	"github.com/dlemaire/picofeed/internal/jsondb"
	"github.com/dlemaire/picofeed/internal/models"
)

// UserStore persists user records keyed by the provider-assigned identifier.
type UserStore struct {
	table *jsondb.Table[uint64, models.User]
	git   *GitLog
}

// NewUserStore loads the user table at path. git may be nil to disable the
// audit trail.
func NewUserStore(path string, git *GitLog) *UserStore {
	return &UserStore{
		table: jsondb.Load[uint64, models.User](path),
		git:   git,
	}
}

// Upsert unconditionally overwrites the record at user.ID and persists.
// There is no existence check and no field-level merge: a returning user's
// previously stored name and avatar are replaced whole. Last writer wins.
func (s *UserStore) Upsert(user models.User) error {
	if err := s.table.Upsert(user.ID, user); err != nil {
		return err
	}
	s.logChange("upsert user")
	return nil
}

// Get returns an owned copy of the user record.
func (s *UserStore) Get(id uint64) (models.User, bool) {
	return s.table.Get(id)
}

// Exists reports whether a user record is present.
func (s *UserStore) Exists(id uint64) (bool, error) {
	return s.table.Exists(id)
}

// Count returns the number of user records.
func (s *UserStore) Count() int {
	return s.table.Len()
}

// All returns owned copies of all users, sorted by identifier.
func (s *UserStore) All() ([]models.User, error) {
	rows, err := s.table.Snapshot()
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b models.User) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return users, nil
}

// SetLiked records or removes postID in the user's liked-posts list. This is
// an independent mutation from the post's like counter: there is no shared
// transaction between the two tables, and a crash between them leaves the
// lists inconsistent.
func (s *UserStore) SetLiked(userID, postID uint64, liked bool) error {
	found, err := s.table.Update(userID, func(u *models.User) {
		idx := slices.Index(u.LikedPosts, postID)
		switch {
		case liked && idx < 0:
			u.LikedPosts = append(u.LikedPosts, postID)
		case !liked && idx >= 0:
			u.LikedPosts = slices.Delete(u.LikedPosts, idx, idx+1)
		}
	})
	if err != nil {
		return err
	}
	if found {
		s.logChange("update liked posts")
	}
	return nil
}

// Reset empties the table. Requires an administrative principal.
func (s *UserStore) Reset(admin *auth.Admin) error {
	if err := s.table.Clear(admin); err != nil {
		return err
	}
	s.logChange("reset users")
	return nil
}

func (s *UserStore) logChange(message string) {
	if s.git == nil {
		return
	}
	if err := s.git.Commit(message); err != nil {
		slog.Warn("Failed to commit data change", "table", "users", "err", err)
	}
}
