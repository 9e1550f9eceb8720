// Package storage provides the domain stores over the generic jsondb tables
// plus the optional git audit trail of the data directory.
package storage

import (
	"errors"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitLog keeps a best-effort commit history of the data directory. Every
// committed table mutation is followed by a commit; failures are reported to
// the caller who logs and moves on, they never fail the mutation itself.
type GitLog struct {
	dir string

	mu   sync.Mutex
	repo *git.Repository
}

// NewGitLog opens the repository at dir, initializing it if needed.
func NewGitLog(dir string) (*GitLog, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, err
	}
	return &GitLog{dir: dir, repo: repo}, nil
}

// Commit stages everything under the data directory and commits it with the
// given message. A clean worktree is a no-op.
func (g *GitLog) Commit(message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	wt, err := g.repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.AddGlob("."); err != nil {
		if errors.Is(err, git.ErrGlobNoMatches) {
			return nil
		}
		return err
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "picofeed",
			Email: "picofeed@localhost",
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	return err
}

// CommitCount returns the number of commits on the current branch.
func (g *GitLog) CommitCount() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	iter, err := g.repo.Log(&git.LogOptions{})
	if err != nil {
		// A freshly initialized repository has no HEAD yet.
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer iter.Close()
	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	return count, err
}
