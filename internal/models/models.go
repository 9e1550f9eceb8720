// Package models defines the core data structures used throughout the application.
package models

// User represents a system user, keyed by the identifier assigned by the
// identity provider. The record is overwritten whole on every login (upsert,
// no field-level merge).
type User struct {
	ID         uint64   `json:"id"`
	Login      string   `json:"login"`
	Name       string   `json:"name,omitempty"`
	AvatarURL  string   `json:"avatar_url,omitempty"`
	LikedPosts []uint64 `json:"liked_posts"`
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	c := u
	if u.LikedPosts != nil {
		c.LikedPosts = make([]uint64, len(u.LikedPosts))
		copy(c.LikedPosts, u.LikedPosts)
	}
	return c
}

// Post represents a feed entry. Author is a weak reference into the user
// table; nothing enforces it. Likes is a plain signed counter with no floor.
type Post struct {
	ID        uint64 `json:"id"`
	Author    uint64 `json:"author"`
	Text      string `json:"text"`
	ImagePath string `json:"image_path,omitempty"`
	Likes     int64  `json:"likes"`
}

// Clone returns a copy of the post.
func (p Post) Clone() Post {
	return p
}
