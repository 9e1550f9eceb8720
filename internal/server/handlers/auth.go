package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/dlemaire/picofeed/internal/errors"
	"github.com/dlemaire/picofeed/internal/models"
	"github.com/dlemaire/picofeed/internal/server/httpjson"
	"github.com/dlemaire/picofeed/internal/server/reqctx"
)

const (
	// SessionCookie holds the signed session token.
	SessionCookie = "picofeed_session"
	stateCookie   = "picofeed_oauth_state"
	githubUserURL = "https://api.github.com/user"
)

// githubUser is the subset of the GitHub user payload we keep.
type githubUser struct {
	ID        uint64 `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (s *Services) secureCookies() bool {
	return strings.HasPrefix(s.BaseURL, "https://")
}

// GitHubLogin starts the OAuth flow: it plants a random state cookie and
// redirects to GitHub's authorization page.
func (s *Services) GitHubLogin(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		httpjson.WriteError(w, apierrors.InternalWithError("Failed to generate state", err))
		return
	}
	state := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.OAuth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GitHubCallback finishes the OAuth flow: it validates the state, exchanges
// the code, fetches the GitHub profile, upserts the user record and opens a
// session. The profile upsert is a full overwrite so renamed accounts and
// changed avatars converge on next sign-in.
func (s *Services) GitHubCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stateC, err := r.Cookie(stateCookie)
	if err != nil || stateC.Value == "" || stateC.Value != r.URL.Query().Get("state") {
		httpjson.WriteError(w, apierrors.BadRequest("OAuth state mismatch"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		httpjson.WriteError(w, apierrors.MissingField("code"))
		return
	}
	token, err := s.OAuth.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "OAuth code exchange failed", "err", err)
		httpjson.WriteError(w, apierrors.Unauthenticated())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubUserURL, nil)
	if err != nil {
		httpjson.WriteError(w, apierrors.InternalWithError("Failed to build profile request", err))
		return
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := s.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "GitHub profile fetch failed", "err", err)
		httpjson.WriteError(w, apierrors.Unauthenticated())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.ErrorContext(ctx, "GitHub profile fetch failed", "status", resp.StatusCode)
		httpjson.WriteError(w, apierrors.Unauthenticated())
		return
	}
	var ghUser githubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		httpjson.WriteError(w, apierrors.Serialization("Failed to decode GitHub profile", err))
		return
	}
	if ghUser.ID == 0 || ghUser.Login == "" {
		httpjson.WriteError(w, apierrors.Unauthenticated())
		return
	}

	if err := s.Users.Upsert(models.User{
		ID:        ghUser.ID,
		Login:     ghUser.Login,
		Name:      ghUser.Name,
		AvatarURL: ghUser.AvatarURL,
	}); err != nil {
		httpjson.WriteError(w, err)
		return
	}

	session, err := s.Sessions.Create(ghUser.ID, reqctx.ClientIP(ctx), reqctx.CountryCode(ctx), s.SessionTTL)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	signed, err := s.Codec.Mint(ghUser.ID, session.ID)
	if err != nil {
		httpjson.WriteError(w, apierrors.InternalWithError("Failed to mint session token", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(s.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	slog.InfoContext(ctx, "User signed in", "user", ghUser.ID, "login", ghUser.Login,
		"country", reqctx.CountryCode(ctx))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout revokes the current session and clears the session cookie. It is a
// no-op for requests without a valid session.
func (s *Services) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if _, sessionID, err := s.Codec.Parse(c.Value); err == nil {
			if err := s.Sessions.Revoke(sessionID); err != nil {
				slog.WarnContext(ctx, "Failed to revoke session", "err", err)
			}
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}
