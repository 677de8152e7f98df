package services

import (
	"time"

	"github.com/desertthunder/tunescope/internal/models"
)

// TokenStore holds the client's credentials: the session token, the Spotify access
// token and its expiry (epoch seconds as a decimal string).
//
// Implementations live in the repositories package.
type TokenStore interface {
	// Get returns the stored value for kind, or false if absent.
	Get(kind models.TokenKind) (string, bool)

	// Set overwrites the value for kind. A non-zero expiry is stored alongside
	// as [models.AccessTokenExpiry] in the same write.
	Set(kind models.TokenKind, value string, expiry time.Time) error

	// Clear removes every stored token.
	Clear() error
}
