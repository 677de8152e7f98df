package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrInvalidToken     = fmt.Errorf("invalid session token")
	ErrTokenExpired     = fmt.Errorf("token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrRefreshRevoked   = fmt.Errorf("refresh_token_revoked")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrInvalidState     = fmt.Errorf("invalid state parameter")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrNotFound           = fmt.Errorf("not found")

	// Analysis errors
	ErrNotEnoughTracks  = fmt.Errorf("not enough tracks for meaningful analysis")
	ErrClusteringFailed = fmt.Errorf("clustering failed")
	ErrCacheMiss        = fmt.Errorf("cache miss")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
