package storage

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/dlemaire/picofeed/internal/models"
)

func newUserStore(t *testing.T) *UserStore {
	t.Helper()
	return NewUserStore(filepath.Join(t.TempDir(), "users.json"), nil)
}

func TestUserStoreUpsert(t *testing.T) {
	s := newUserStore(t)
	if err := s.Upsert(models.User{ID: 42, Login: "alice", Name: "Alice", LikedPosts: []uint64{1, 2}}); err != nil {
		t.Fatal(err)
	}

	t.Run("overwrites whole record", func(t *testing.T) {
		// A returning login replaces the record, liked posts included.
		if err := s.Upsert(models.User{ID: 42, Login: "alice2"}); err != nil {
			t.Fatal(err)
		}
		got, ok := s.Get(42)
		if !ok {
			t.Fatal("Expected user 42")
		}
		if got.Login != "alice2" || got.Name != "" || got.LikedPosts != nil {
			t.Errorf("Expected whole-record overwrite, got %+v", got)
		}
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := s.Exists(42)
		if err != nil || !ok {
			t.Errorf("Exists(42) = %v, %v", ok, err)
		}
		ok, err = s.Exists(99)
		if err != nil || ok {
			t.Errorf("Exists(99) = %v, %v", ok, err)
		}
	})
}

func TestSetLiked(t *testing.T) {
	s := newUserStore(t)
	if err := s.Upsert(models.User{ID: 1, Login: "bob"}); err != nil {
		t.Fatal(err)
	}

	t.Run("add", func(t *testing.T) {
		if err := s.SetLiked(1, 10, true); err != nil {
			t.Fatal(err)
		}
		if err := s.SetLiked(1, 20, true); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(1)
		if !slices.Equal(got.LikedPosts, []uint64{10, 20}) {
			t.Errorf("Unexpected liked posts: %v", got.LikedPosts)
		}
	})

	t.Run("add is idempotent", func(t *testing.T) {
		if err := s.SetLiked(1, 10, true); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(1)
		if !slices.Equal(got.LikedPosts, []uint64{10, 20}) {
			t.Errorf("Duplicate like changed the list: %v", got.LikedPosts)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := s.SetLiked(1, 10, false); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(1)
		if !slices.Equal(got.LikedPosts, []uint64{20}) {
			t.Errorf("Unexpected liked posts after remove: %v", got.LikedPosts)
		}
	})

	t.Run("remove absent is a no-op", func(t *testing.T) {
		if err := s.SetLiked(1, 999, false); err != nil {
			t.Fatal(err)
		}
		got, _ := s.Get(1)
		if !slices.Equal(got.LikedPosts, []uint64{20}) {
			t.Errorf("Removing an absent id changed the list: %v", got.LikedPosts)
		}
	})

	t.Run("unknown user is a no-op", func(t *testing.T) {
		if err := s.SetLiked(77, 10, true); err != nil {
			t.Errorf("Expected silent success, got %v", err)
		}
		if s.Count() != 1 {
			t.Error("No-op must not create a user")
		}
	})
}

func TestUserStoreReset(t *testing.T) {
	s := newUserStore(t)
	if err := s.Upsert(models.User{ID: 1, Login: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(testAdmin(t)); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Errorf("Expected empty store after reset, got %d users", s.Count())
	}
}
