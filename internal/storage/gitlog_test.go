package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGitLog(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGitLog(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("empty commit is a no-op", func(t *testing.T) {
		if err := g.Commit("nothing changed"); err != nil {
			t.Fatal(err)
		}
		n, err := g.CommitCount()
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("Expected 0 commits, got %d", n)
		}
	})

	t.Run("commits data changes", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "users.json"), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := g.Commit("upsert user"); err != nil {
			t.Fatal(err)
		}
		n, err := g.CommitCount()
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("Expected 1 commit, got %d", n)
		}
	})

	t.Run("reopens existing repository", func(t *testing.T) {
		g2, err := NewGitLog(dir)
		if err != nil {
			t.Fatal(err)
		}
		n, err := g2.CommitCount()
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("Expected history to survive reopen, got %d commits", n)
		}
	})
}
