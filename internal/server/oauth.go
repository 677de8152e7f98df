package server

import (
	"fmt"
	"html"
	"net/http"
	"sync"

	"github.com/desertthunder/tunescope/internal/services"
)

// CallbackHandler receives the backend's post-login redirect on the CLI's local listener.
//
// The backend redirects to /callback with the session token on success and to / with an
// error parameter on failure. Only the first request is accepted.
type CallbackHandler struct {
	result chan services.CallbackParams
	once   sync.Once
	mu     sync.Mutex
	hit    bool
}

// NewCallbackHandler creates a handler ready for one redirect.
func NewCallbackHandler() *CallbackHandler {
	return &CallbackHandler{result: make(chan services.CallbackParams, 1)}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"/callback", "/{$}"}
}

// ServeHTTP captures the redirect parameters and sends them through the result channel.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	params := services.CallbackParams{
		Token:       q.Get("token"),
		AccessToken: q.Get("access_token"),
		ExpiresAt:   q.Get("expires_at"),
		Error:       q.Get("error"),
	}
	if params.Error == "" && params.Token == "" {
		params.Error = "missing_token"
	}
	h.Send(params)

	if params.Error != "" {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, callbackPage, "#e22134", "Login Failed", "Error: "+html.EscapeString(params.Error))
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, callbackPage, "#1DB954", "&#10003; Login Successful", "You can close this window and return to the terminal.")
}

// Send delivers the result (only once).
func (h *CallbackHandler) Send(params services.CallbackParams) {
	h.once.Do(func() {
		h.result <- params
		close(h.result)
	})
}

// Result receives exactly one set of parameters and is then closed.
func (h *CallbackHandler) Result() <-chan services.CallbackParams {
	return h.result
}

const callbackPage = `<!DOCTYPE html>
<html>
<head>
    <title>tunescope</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: %s; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`
