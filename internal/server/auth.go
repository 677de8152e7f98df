package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.states.Add(state)

	writeJSON(w, http.StatusOK, map[string]string{"auth_url": s.app.Spotify.AuthURL(state)})
}

// redirectFrontend sends the browser to the frontend with the given path and query.
func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, path string, query url.Values) {
	target := strings.TrimRight(s.app.Config.Server.FrontendURL, "/") + path + "?" + query.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) callbackError(w http.ResponseWriter, r *http.Request, reason string) {
	s.redirectFrontend(w, r, "", url.Values{"error": {reason}})
}

// handleCallback completes the Spotify login: it exchanges the code, stores the user
// with their refresh token and redirects to the frontend with a session token.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		s.logger.Warn("spotify denied authorization", "reason", reason)
		s.callbackError(w, r, "authentication_failed")
		return
	}

	code := q.Get("code")
	if code == "" {
		s.callbackError(w, r, "missing_code")
		return
	}
	if !s.states.Consume(q.Get("state")) {
		s.callbackError(w, r, "invalid_state")
		return
	}

	token, err := s.app.Spotify.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("code exchange failed", "err", err)
		s.callbackError(w, r, "authentication_failed")
		return
	}

	profile, err := s.app.Spotify.ForToken(r.Context(), token).UserProfile(r.Context())
	if err != nil {
		s.logger.Error("failed to fetch spotify profile", "err", err)
		s.callbackError(w, r, "authentication_failed")
		return
	}

	candidate := models.NewUser(0, profile.ID, profile.Email, profile.DisplayName)
	candidate.SetRefreshToken(token.RefreshToken)
	user, err := s.app.Users.Upsert(candidate)
	if err != nil {
		s.logger.Error("failed to store user", "spotify_id", profile.ID, "err", err)
		s.callbackError(w, r, "authentication_failed")
		return
	}
	s.tokens.remember(user.ID(), token)

	session, _, err := s.app.Issuer.Issue(user.ID())
	if err != nil {
		s.logger.Error("failed to issue session token", "user", user.ID(), "err", err)
		s.callbackError(w, r, "authentication_failed")
		return
	}

	expiresAt := time.Now().Add(time.Duration(expiresIn(token.Expiry)) * time.Second)

	s.logger.Info("user logged in", "user", user.ID(), "spotify_id", profile.ID)
	s.redirectFrontend(w, r, "/callback", url.Values{
		"token":        {session},
		"access_token": {token.AccessToken},
		"expires_at":   {strconv.FormatInt(expiresAt.Unix(), 10)},
	})
}

type verifyBody struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerToken(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, verifyBody{Error: err.Error()})
		return
	}

	claims, err := s.app.Issuer.Verify(raw)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, verifyBody{Error: err.Error()})
		return
	}

	if _, err := s.app.Users.Get(claims.UserID()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shared.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, verifyBody{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, verifyBody{Valid: true, UserID: claims.UserID()})
}

type refreshBody struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	SessionToken string `json:"session_token"`
}

// handleRefresh trades a session token, expired or not, issued within the refresh
// window for a fresh Spotify access token and a new session token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	claims, err := s.app.Issuer.VerifyForRefresh(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	user, err := s.app.Users.Get(claims.UserID())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	token, err := s.app.Spotify.Refresh(r.Context(), user.RefreshToken())
	if err != nil {
		if errors.Is(err, shared.ErrRefreshRevoked) || errors.Is(err, shared.ErrNoRefreshToken) {
			s.tokens.forget(user.ID())
			s.logger.Warn("spotify refresh token rejected", "user", user.ID(), "err", err)
			writeError(w, http.StatusUnauthorized, shared.ErrRefreshRevoked.Error())
			return
		}
		s.fail(w, r, err)
		return
	}

	if token.RefreshToken != "" && token.RefreshToken != user.RefreshToken() {
		if err := s.app.Users.UpdateRefreshToken(user.ID(), token.RefreshToken); err != nil {
			s.logger.Error("failed to store rotated refresh token", "user", user.ID(), "err", err)
		}
	}
	s.tokens.remember(user.ID(), token)

	session, _, err := s.app.Issuer.Issue(user.ID())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshBody{
		AccessToken:  token.AccessToken,
		ExpiresIn:    expiresIn(token.Expiry),
		SessionToken: session,
	})
}

// expiresIn converts an expiry instant to seconds from now, assuming Spotify's one hour
// lifetime when the accounts service sent none.
func expiresIn(expiry time.Time) int64 {
	if expiry.IsZero() {
		return int64(time.Hour.Seconds())
	}
	return max(int64(time.Until(expiry).Seconds()), 0)
}

// handleLogout acknowledges a logout. Session tokens are stateless, so clients drop them.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}
