package handlers

import "context"

// HealthResponse reports service liveness and table sizes.
type HealthResponse struct {
	Status   string `json:"status"`
	Users    int    `json:"users"`
	Posts    int    `json:"posts"`
	Sessions int    `json:"sessions"`
}

// Health returns basic liveness and store counts.
func (s *Services) Health(_ context.Context, _ struct{}) (*HealthResponse, error) {
	return &HealthResponse{
		Status:   "ok",
		Users:    s.Users.Count(),
		Posts:    s.Posts.Count(),
		Sessions: s.Sessions.CountActive(),
	}, nil
}
