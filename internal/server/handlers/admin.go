package handlers

import (
	"context"
	"log/slog"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/server/reqctx"
)

// ResetResponse reports what a reset wiped.
type ResetResponse struct {
	UsersCleared    int `json:"users_cleared"`
	PostsCleared    int `json:"posts_cleared"`
	SessionsCleared int `json:"sessions_cleared"`
}

// Reset wipes every table. The escalated admin placed on the context by the
// routing layer is the only value that can drive the store resets.
func (s *Services) Reset(ctx context.Context, _ struct{}) (*ResetResponse, error) {
	admin := reqctx.Admin(ctx)
	if admin == nil {
		return nil, apierrors.Unauthorized()
	}

	resp := &ResetResponse{
		UsersCleared:    s.Users.Count(),
		PostsCleared:    s.Posts.Count(),
		SessionsCleared: s.Sessions.CountActive(),
	}
	if err := s.Users.Reset(admin); err != nil {
		return nil, err
	}
	if err := s.Posts.Reset(admin); err != nil {
		return nil, err
	}
	if err := s.Sessions.Reset(admin); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "All stores reset", "admin", admin.ID,
		"users", resp.UsersCleared, "posts", resp.PostsCleared, "sessions", resp.SessionsCleared)
	return resp, nil
}
