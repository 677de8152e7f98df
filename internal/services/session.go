package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// SessionState is the authentication state of the CLI.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateVerifying       SessionState = "verifying"
	StateAuthenticated   SessionState = "authenticated"
)

// Navigator sends the user to a URL, usually by opening a browser.
type Navigator func(url string) error

// CallbackParams are the query parameters the backend appends when redirecting
// back to the client after Spotify login.
type CallbackParams struct {
	Token       string
	AccessToken string
	ExpiresAt   string
	Error       string
}

// SessionController owns login, the OAuth callback intake, logout and session verification.
//
// Transitions are serialized by mu; network calls happen outside the lock.
type SessionController struct {
	api      *APIService
	store    TokenStore
	navigate Navigator
	logger   *log.Logger

	mu      sync.Mutex
	state   SessionState
	profile *models.UserProfile
}

// NewSessionController creates a controller. The initial state is verifying when a
// session token is already stored, unauthenticated otherwise.
//
// A failed token refresh on api moves the controller to unauthenticated.
func NewSessionController(api *APIService, navigate Navigator, logger *log.Logger) *SessionController {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	c := &SessionController{
		api:      api,
		store:    api.Store(),
		navigate: navigate,
		logger:   logger,
		state:    StateUnauthenticated,
	}
	if _, ok := c.store.Get(models.SessionToken); ok {
		c.state = StateVerifying
	}

	api.OnLoginRequired(func(string) { c.expire() })
	return c
}

// State returns the current state.
func (c *SessionController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Profile returns the profile fetched on the last successful verification.
func (c *SessionController) Profile() *models.UserProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

type verifyResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Verify checks the stored session token against the backend.
//
// An invalid token, or a 401/403, clears the store and ends in unauthenticated.
// Any other failure (transport, 5xx) leaves both the state and the tokens as they were.
func (c *SessionController) Verify(ctx context.Context) error {
	c.mu.Lock()
	if _, ok := c.store.Get(models.SessionToken); !ok {
		c.state = StateUnauthenticated
		c.mu.Unlock()
		return shared.ErrNotAuthenticated
	}
	previous := c.state
	c.state = StateVerifying
	c.mu.Unlock()

	var body verifyResponse
	err := c.api.GetJSON(ctx, verifyPath, &body)
	if err != nil {
		if status := StatusCode(err); status == http.StatusUnauthorized || status == http.StatusForbidden {
			c.reset()
			return fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
		}

		c.mu.Lock()
		c.state = previous
		c.mu.Unlock()
		return err
	}

	if !body.Valid {
		c.reset()
		return fmt.Errorf("%w: %s", shared.ErrInvalidToken, body.Error)
	}

	var profile models.UserProfile
	if err := c.api.GetJSON(ctx, "/user/profile", &profile); err != nil {
		if errors.Is(err, shared.ErrRefreshFailed) {
			return err
		}
		c.logger.Warn("failed to fetch profile", "err", err)
	}

	c.mu.Lock()
	c.state = StateAuthenticated
	if profile.ID != "" {
		c.profile = &profile
	}
	c.mu.Unlock()

	return nil
}

// Login asks the backend for the Spotify authorization URL and navigates to it.
// The session starts once [SessionController.HandleCallback] receives the redirect.
func (c *SessionController) Login(ctx context.Context) (string, error) {
	var body struct {
		AuthURL string `json:"auth_url"`
	}
	if err := c.api.GetJSON(ctx, "/auth/login", &body); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}
	if body.AuthURL == "" {
		return "", fmt.Errorf("%w: backend returned no auth_url", shared.ErrAuthFailed)
	}

	if c.navigate != nil {
		if err := c.navigate(body.AuthURL); err != nil {
			c.logger.Warn("could not open browser", "err", err)
		}
	}
	return body.AuthURL, nil
}

// HandleCallback persists the tokens delivered by the login redirect and verifies them.
// A failed login ends any previous session.
func (c *SessionController) HandleCallback(ctx context.Context, p CallbackParams) error {
	if p.Error != "" {
		c.reset()
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, p.Error)
	}
	if p.Token == "" {
		c.reset()
		return fmt.Errorf("%w: callback carried no session token", shared.ErrAuthFailed)
	}

	var expiry time.Time
	if p.AccessToken != "" && p.ExpiresAt != "" {
		parsed, err := ExpiryFromString(p.ExpiresAt)
		if err != nil {
			return err
		}
		expiry = parsed
	}

	c.mu.Lock()
	if err := c.store.Set(models.SessionToken, p.Token, time.Time{}); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to store session token: %w", err)
	}
	if p.AccessToken != "" {
		if err := c.store.Set(models.AccessToken, p.AccessToken, expiry); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to store access token: %w", err)
		}
	}
	c.state = StateVerifying
	c.mu.Unlock()

	return c.Verify(ctx)
}

// Logout notifies the backend (best effort) and then clears local state unconditionally.
func (c *SessionController) Logout(ctx context.Context) error {
	if err := c.api.PostJSON(ctx, "/auth/logout", nil, nil); err != nil {
		c.logger.Warn("backend logout failed", "err", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnauthenticated
	c.profile = nil
	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (c *SessionController) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear token store", "err", err)
	}
	c.state = StateUnauthenticated
	c.profile = nil
}

// expire is the refresh failure hook; the client has already cleared the store.
func (c *SessionController) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUnauthenticated
	c.profile = nil
}
