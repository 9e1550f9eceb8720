package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/server/httpjson"
	"github.com/dlemaire/picofeed/internal/server/reqctx"
)

const maxImageBytes = 8 << 20

// FeedAuthor is the public projection of a post's author.
type FeedAuthor struct {
	ID        uint64 `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// FeedPost is a post enriched with its author and, for signed-in viewers,
// whether the viewer liked it.
type FeedPost struct {
	ID       uint64     `json:"id"`
	Author   FeedAuthor `json:"author"`
	Text     string     `json:"text"`
	HasImage bool       `json:"has_image"`
	Likes    int64      `json:"likes"`
	Liked    bool       `json:"liked"`
}

// FeedResponse lists all posts, newest first.
type FeedResponse struct {
	Posts []FeedPost `json:"posts"`
}

// Feed returns every post with author details. The viewer, when signed in,
// additionally gets per-post liked flags.
func (s *Services) Feed(ctx context.Context, _ struct{}) (*FeedResponse, error) {
	posts, err := s.Posts.All()
	if err != nil {
		return nil, err
	}

	var liked []uint64
	if p := reqctx.Principal(ctx); p != nil {
		if u, ok := s.Users.Get(p.ID); ok {
			liked = u.LikedPosts
		}
	}

	authors := map[uint64]FeedAuthor{}
	out := make([]FeedPost, 0, len(posts))
	for _, post := range posts {
		author, ok := authors[post.Author]
		if !ok {
			if u, found := s.Users.Get(post.Author); found {
				author = FeedAuthor{ID: u.ID, Login: u.Login, Name: u.Name, AvatarURL: u.AvatarURL}
			} else {
				author = FeedAuthor{ID: post.Author, Login: "ghost"}
			}
			authors[post.Author] = author
		}
		out = append(out, FeedPost{
			ID:       post.ID,
			Author:   author,
			Text:     post.Text,
			HasImage: post.ImagePath != "",
			Likes:    post.Likes,
			Liked:    slices.Contains(liked, post.ID),
		})
	}
	// Newest first.
	slices.Reverse(out)
	return &FeedResponse{Posts: out}, nil
}

// MeResponse describes the signed-in user.
type MeResponse struct {
	ID          uint64   `json:"id"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Admin       bool     `json:"admin"`
	LikedPosts  []uint64 `json:"liked_posts"`
}

// Me returns the authenticated user's profile.
func (s *Services) Me(ctx context.Context, _ struct{}) (*MeResponse, error) {
	p := reqctx.Principal(ctx)
	if p == nil {
		return nil, apierrors.Unauthenticated()
	}
	resp := &MeResponse{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		LikedPosts:  []uint64{},
	}
	if u, ok := s.Users.Get(p.ID); ok && len(u.LikedPosts) > 0 {
		resp.LikedPosts = u.LikedPosts
	}
	return resp, nil
}

// CreatePost accepts a multipart form with a required "text" field and an
// optional "image" file. The image is staged to a temporary file before it
// enters the store so a truncated upload never leaves a half-written image
// in the image directory.
func (s *Services) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := reqctx.Principal(ctx)
	if p == nil {
		httpjson.WriteError(w, apierrors.Unauthenticated())
		return
	}
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		httpjson.WriteError(w, apierrors.BadRequest("Invalid multipart form"))
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		httpjson.WriteError(w, apierrors.MissingField("text"))
		return
	}

	imageSrc := ""
	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		tmp, err := os.CreateTemp("", "picofeed-upload-*")
		if err != nil {
			httpjson.WriteError(w, apierrors.Storage("Failed to stage image", err))
			return
		}
		defer os.Remove(tmp.Name())
		// Read one byte past the limit so an oversized upload is detected
		// instead of silently truncated.
		n, err := io.Copy(tmp, io.LimitReader(file, maxImageBytes+1))
		if err2 := tmp.Close(); err == nil {
			err = err2
		}
		if err != nil {
			httpjson.WriteError(w, apierrors.Storage("Failed to stage image", err))
			return
		}
		if n > maxImageBytes {
			httpjson.WriteError(w, apierrors.BadRequest("Image exceeds the size limit"))
			return
		}
		imageSrc = tmp.Name()
	}

	post, err := s.Posts.CreatePost(p.ID, text, imageSrc)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	slog.InfoContext(ctx, "Post created", "post", post.ID, "author", p.ID, "hasImage", imageSrc != "")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(postResponse{ID: post.ID, Likes: post.Likes})
}

type postResponse struct {
	ID    uint64 `json:"id"`
	Likes int64  `json:"likes"`
}

// LikeRequest toggles the viewer's like on a post.
type LikeRequest struct {
	PostID uint64 `path:"id" json:"-"`
	Action string `json:"action"`
}

// LikeResponse returns the post's updated like count.
type LikeResponse struct {
	PostID uint64 `json:"post_id"`
	Likes  int64  `json:"likes"`
	Liked  bool   `json:"liked"`
}

// Like applies a like or dislike action to a post. The counter moves by one
// in the requested direction and the viewer's liked list is updated to
// match.
func (s *Services) Like(ctx context.Context, req LikeRequest) (*LikeResponse, error) {
	p := reqctx.Principal(ctx)
	if p == nil {
		return nil, apierrors.Unauthenticated()
	}
	var delta int64
	switch req.Action {
	case "like":
		delta = 1
	case "dislike":
		delta = -1
	default:
		return nil, apierrors.BadRequest("Action must be \"like\" or \"dislike\"")
	}

	if err := s.Posts.AdjustLike(req.PostID, delta); err != nil {
		return nil, err
	}
	if err := s.Users.SetLiked(p.ID, req.PostID, delta > 0); err != nil {
		return nil, err
	}

	likes := int64(0)
	if post, ok := s.Posts.Get(req.PostID); ok {
		likes = post.Likes
	}
	return &LikeResponse{PostID: req.PostID, Likes: likes, Liked: delta > 0}, nil
}

// ServeImage streams a post's image from the image directory.
func (s *Services) ServeImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, apierrors.BadRequest("Invalid post id"))
		return
	}
	path, ok := s.Posts.ImagePath(id)
	if !ok {
		httpjson.WriteError(w, apierrors.NotFound("image"))
		return
	}
	http.ServeFile(w, r, path)
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
