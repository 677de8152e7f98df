package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunescope/internal/auth"
	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// ContextKey is the type of the request context keys set by this package.
type ContextKey string

const (
	// ContextKeyUser stores the authenticated *models.User.
	ContextKeyUser ContextKey = "user"
	// ContextKeyClaims stores the verified *auth.Claims.
	ContextKeyClaims ContextKey = "claims"
)

// UserFrom returns the user injected by [RequireSession].
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ContextKeyUser).(*models.User)
	return u, ok && u != nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Recover turns a panicking handler into a 500.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked", "method", r.Method, "path", r.URL.Path, "panic", rec)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

// CORS allows the frontend origin to call the API with credentials and answers preflight requests.
func CORS(origin string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" && r.Header.Get("Origin") == origin {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", shared.ErrNotAuthenticated)
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid Authorization header format", shared.ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

// UserFinder loads users by id.
type UserFinder interface {
	Get(id string) (*models.User, error)
}

// RequireSession verifies the bearer session token and injects its user and claims
// into the request context. Missing or invalid tokens get a 401, unknown users a 404.
func RequireSession(issuer *auth.Issuer, users UserFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := issuer.Verify(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			user, err := users.Get(claims.UserID())
			if err != nil {
				status := http.StatusInternalServerError
				if errors.Is(err, shared.ErrUserNotFound) {
					status = http.StatusNotFound
				}
				writeError(w, status, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
