package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/tunescope/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// statusFor maps an error to the response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrTokenExpired),
		errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrRefreshRevoked),
		errors.Is(err, shared.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrNotEnoughTracks):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to. Server errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}
