// package auth issues and verifies the session tokens handed to clients after Spotify login.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/desertthunder/tunescope/internal/shared"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultRefreshWindow = 7 * 24 * time.Hour
)

// Claims are the session token claims. Subject is the user id.
type Claims struct {
	jwtlib.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// Issuer signs HS256 session tokens.
type Issuer struct {
	secret        []byte
	ttl           time.Duration
	refreshWindow time.Duration
}

// NewIssuer creates an issuer. Non-positive durations fall back to one day
// for tokens and seven days for the refresh window.
func NewIssuer(secret string, ttl, refreshWindow time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if refreshWindow <= 0 {
		refreshWindow = defaultRefreshWindow
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, refreshWindow: refreshWindow}
}

// NewIssuerFromConfig creates an issuer from the auth section of the config.
func NewIssuerFromConfig(cfg shared.AuthConfig) *Issuer {
	return NewIssuer(cfg.JWTSecret, cfg.SessionTTL(), cfg.RefreshWindow())
}

// Issue signs a session token for userID and returns it with its expiry.
func (i *Issuer) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", shared.ErrInvalidInput)
	}

	now := NowTimeFunc()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expires),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a session token, checking signature and expiry.
// Expired tokens return [shared.ErrTokenExpired]; anything else unusable returns [shared.ErrInvalidToken].
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, i.key,
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", shared.ErrInvalidToken)
	}
	return claims, nil
}

// VerifyForRefresh accepts a correctly signed token whose expiry may have passed,
// as long as it was issued within the refresh window.
func (i *Issuer) VerifyForRefresh(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, i.key,
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing subject or issued-at", shared.ErrInvalidToken)
	}
	if NowTimeFunc().Sub(claims.IssuedAt.Time) > i.refreshWindow {
		return nil, fmt.Errorf("%w: issued outside the refresh window", shared.ErrTokenExpired)
	}
	return claims, nil
}

func (i *Issuer) key(t *jwtlib.Token) (any, error) {
	if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return i.secret, nil
}
