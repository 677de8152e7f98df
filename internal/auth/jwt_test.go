package auth

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/desertthunder/tunescope/internal/shared"
)

func withClock(t *testing.T, now time.Time) func(time.Time) {
	t.Helper()
	current := now
	NowTimeFunc = func() time.Time { return current }
	t.Cleanup(func() { NowTimeFunc = time.Now })
	return func(next time.Time) { current = next }
}

func TestIssuer(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("RoundTrip", func(t *testing.T) {
		withClock(t, start)
		issuer := NewIssuer("secret", 0, 0)

		token, expires, err := issuer.Issue("user-1")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if !expires.Equal(start.Add(24 * time.Hour)) {
			t.Errorf("expected expiry one day out, got %v", expires)
		}

		claims, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if claims.UserID() != "user-1" {
			t.Errorf("expected subject user-1, got %s", claims.UserID())
		}
		if claims.ID == "" {
			t.Error("expected a token id")
		}
	})

	t.Run("UniqueTokens", func(t *testing.T) {
		withClock(t, start)
		issuer := NewIssuer("secret", time.Hour, 0)

		a, _, _ := issuer.Issue("user-1")
		b, _, _ := issuer.Issue("user-1")
		if a == b {
			t.Error("tokens issued at the same instant should differ by id")
		}
	})

	t.Run("EmptySubject", func(t *testing.T) {
		issuer := NewIssuer("secret", time.Hour, 0)
		if _, _, err := issuer.Issue(""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		advance := withClock(t, start)
		issuer := NewIssuer("secret", time.Hour, 0)

		token, _, _ := issuer.Issue("user-1")
		advance(start.Add(2 * time.Hour))

		if _, err := issuer.Verify(token); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		withClock(t, start)
		token, _, _ := NewIssuer("secret", time.Hour, 0).Issue("user-1")

		_, err := NewIssuer("other", time.Hour, 0).Verify(token)
		if !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := NewIssuer("secret", 0, 0).Verify("not-a-jwt"); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("RejectsNoneAlgorithm", func(t *testing.T) {
		withClock(t, start)
		claims := jwtlib.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwtlib.NewNumericDate(start),
			ExpiresAt: jwtlib.NewNumericDate(start.Add(time.Hour)),
		}
		unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("failed to build unsigned token: %v", err)
		}

		issuer := NewIssuer("secret", 0, 0)
		if _, err := issuer.Verify(unsigned); err == nil {
			t.Error("expected alg none to be rejected")
		}
		if _, err := issuer.VerifyForRefresh(unsigned); err == nil {
			t.Error("expected alg none to be rejected for refresh")
		}
	})
}

func TestVerifyForRefresh(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AcceptsExpiredWithinWindow", func(t *testing.T) {
		advance := withClock(t, start)
		issuer := NewIssuer("secret", time.Hour, 48*time.Hour)

		token, _, _ := issuer.Issue("user-1")
		advance(start.Add(24 * time.Hour))

		claims, err := issuer.VerifyForRefresh(token)
		if err != nil {
			t.Fatalf("VerifyForRefresh() error = %v", err)
		}
		if claims.UserID() != "user-1" {
			t.Errorf("expected subject user-1, got %s", claims.UserID())
		}
	})

	t.Run("RejectsOutsideWindow", func(t *testing.T) {
		advance := withClock(t, start)
		issuer := NewIssuer("secret", time.Hour, 48*time.Hour)

		token, _, _ := issuer.Issue("user-1")
		advance(start.Add(72 * time.Hour))

		if _, err := issuer.VerifyForRefresh(token); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("RejectsBadSignature", func(t *testing.T) {
		withClock(t, start)
		token, _, _ := NewIssuer("secret", time.Hour, 0).Issue("user-1")

		if _, err := NewIssuer("other", time.Hour, 0).VerifyForRefresh(token); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestNewIssuerFromConfig(t *testing.T) {
	issuer := NewIssuerFromConfig(shared.AuthConfig{JWTSecret: "s", SessionTTLHours: 2, RefreshWindowHours: 5})
	if issuer.ttl != 2*time.Hour {
		t.Errorf("expected ttl 2h, got %v", issuer.ttl)
	}
	if issuer.refreshWindow != 5*time.Hour {
		t.Errorf("expected refresh window 5h, got %v", issuer.refreshWindow)
	}
}
