package storage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dlemaire/picofeed/internal/auth"
	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/jsondb"
	"github.com/dlemaire/picofeed/internal/models"
)

// PostStore persists feed posts and their uploaded images.
type PostStore struct {
	table    *jsondb.Table[uint64, models.Post]
	imageDir string
	git      *GitLog
}

// NewPostStore loads the post table at path. Images are copied under
// imageDir, named after the post identifier. git may be nil to disable the
// audit trail.
func NewPostStore(path, imageDir string, git *GitLog) *PostStore {
	return &PostStore{
		table:    jsondb.Load[uint64, models.Post](path),
		imageDir: imageDir,
		git:      git,
	}
}

// CreatePost inserts a new post. The identifier is one greater than the
// current maximum (1 for an empty table). This is not a monotonic counter:
// ids could be reused if the highest-numbered post were ever removed. When
// imageSrc is non-empty the staged file is copied to
// <imageDir>/<id> before the record is committed; a copy failure aborts the
// whole creation.
func (s *PostStore) CreatePost(author uint64, text, imageSrc string) (models.Post, error) {
	var post models.Post
	err := s.table.Mutate(func(rows map[uint64]models.Post) error {
		var maxID uint64
		for id := range rows {
			if id > maxID {
				maxID = id
			}
		}
		id := maxID + 1

		imagePath := ""
		if imageSrc != "" {
			if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
				return apierrors.Storage("failed to create image directory", err)
			}
			imagePath = filepath.Join(s.imageDir, strconv.FormatUint(id, 10))
			if err := copyFile(imageSrc, imagePath); err != nil {
				return apierrors.Storage("failed to store post image", err)
			}
		}

		post = models.Post{
			ID:        id,
			Author:    author,
			Text:      text, // stored verbatim, escaping is the rendering layer's job
			ImagePath: imagePath,
		}
		rows[id] = post
		return nil
	})
	if err != nil {
		return models.Post{}, err
	}
	s.logChange("create post")
	return post, nil
}

// AdjustLike adds delta to the post's like counter. The counter is a plain
// signed integer with no floor: repeated decrements go below zero. An
// unknown post id silently succeeds with no effect, though the table is
// persisted either way.
func (s *PostStore) AdjustLike(postID uint64, delta int64) error {
	found, err := s.table.Update(postID, func(p *models.Post) {
		p.Likes += delta
	})
	if err != nil {
		return err
	}
	if found {
		s.logChange("adjust like")
	}
	return nil
}

// Get returns an owned copy of the post.
func (s *PostStore) Get(id uint64) (models.Post, bool) {
	return s.table.Get(id)
}

// Count returns the number of posts.
func (s *PostStore) Count() int {
	return s.table.Len()
}

// All returns owned copies of all posts, sorted by identifier.
func (s *PostStore) All() ([]models.Post, error) {
	rows, err := s.table.Snapshot()
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(rows))
	for _, p := range rows {
		posts = append(posts, p)
	}
	slices.SortFunc(posts, func(a, b models.Post) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return posts, nil
}

// ImagePath returns the filesystem path of the post's stored image, or
// false when the post has none.
func (s *PostStore) ImagePath(id uint64) (string, bool) {
	post, ok := s.table.Get(id)
	if !ok || post.ImagePath == "" {
		return "", false
	}
	return post.ImagePath, true
}

// Reset empties the table. Requires an administrative principal. Stored
// image files are left behind; only the table is cleared.
func (s *PostStore) Reset(admin *auth.Admin) error {
	if err := s.table.Clear(admin); err != nil {
		return err
	}
	s.logChange("reset posts")
	return nil
}

func (s *PostStore) logChange(message string) {
	if s.git == nil {
		return
	}
	if err := s.git.Commit(message); err != nil {
		slog.Warn("Failed to commit data change", "table", "posts", "err", err)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
