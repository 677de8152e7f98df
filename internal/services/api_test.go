package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/shared"
	tu "github.com/desertthunder/tunescope/internal/testing"
)

// newSessionAPI returns a client for srv whose store already holds session.
func newSessionAPI(t *testing.T, srv *httptest.Server, session string) *APIService {
	t.Helper()
	store := repositories.NewMemoryTokenStore()
	if session != "" {
		if err := store.Set(models.SessionToken, session, time.Time{}); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}
	return NewAPIService(srv.URL, srv.Client(), WithTokenStore(store))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/api/", customClient)

			if srv.BaseURL() != "http://example.com/api" {
				t.Errorf("expected trailing slash trimmed, got %s", srv.BaseURL())
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Defaults", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.BaseURL() != defaultBaseURL {
				t.Errorf("expected default baseURL %q, got %s", defaultBaseURL, srv.BaseURL())
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
			if srv.timeout != defaultTimeout {
				t.Errorf("expected default timeout, got %v", srv.timeout)
			}
			if srv.Store() == nil {
				t.Error("expected in-memory token store")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Sends Stored Session Token", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer S1" {
					t.Errorf("expected bearer S1, got %q", r.Header.Get("Authorization"))
				}
				tu.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
			}))
			defer server.Close()

			resp, err := newSessionAPI(t, server, "S1").Get(context.Background(), "/test")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !resp.IsJSON || resp.JSONData == nil {
				t.Error("expected JSON response")
			}
		})

		t.Run("No Authorization Without Session", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := r.Header["Authorization"]; ok {
					t.Error("expected no Authorization header")
				}
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			resp, err := newSessionAPI(t, server, "").Get(context.Background(), "/test")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected response to not be JSON")
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("unexpected body %q", resp.Body)
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil)
			_, err := srv.Get(context.Background(), "/test\x00invalid")

			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			_, err := NewAPIService("http://example.com", client).Get(context.Background(), "/test")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("Timeout", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, server.Client(), WithTimeout(20*time.Millisecond))
			_, err := srv.Get(context.Background(), "/slow")
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected deadline exceeded, got %v", err)
			}
		})
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			status   int
			sentinel error
		}{
			{http.StatusForbidden, shared.ErrUnauthorized},
			{http.StatusNotFound, shared.ErrNotFound},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusBadGateway, shared.ErrServiceUnavailable},
			{http.StatusBadRequest, shared.ErrAPIRequest},
		}

		for _, tt := range tests {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					tu.WriteJSON(w, tt.status, map[string]string{"error": "boom"})
				}))
				defer server.Close()

				_, err := newSessionAPI(t, server, "S1").Get(context.Background(), "/thing")
				if !errors.Is(err, tt.sentinel) {
					t.Errorf("expected %v, got %v", tt.sentinel, err)
				}
				if StatusCode(err) != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, StatusCode(err))
				}

				var httpErr *HTTPError
				if !errors.As(err, &httpErr) || httpErr.Message() != "boom" {
					t.Errorf("expected message 'boom', got %v", err)
				}
			})
		}
	})

	t.Run("PostJSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
			}

			body, _ := io.ReadAll(r.Body)
			var data map[string]string
			if err := json.Unmarshal(body, &data); err != nil || data["test"] != "data" {
				t.Errorf("unexpected request body %s", body)
			}
			tu.WriteJSON(w, http.StatusCreated, map[string]string{"id": "123"})
		}))
		defer server.Close()

		var out struct {
			ID string `json:"id"`
		}
		err := newSessionAPI(t, server, "S1").PostJSON(context.Background(), "/test", map[string]string{"test": "data"}, &out)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.ID != "123" {
			t.Errorf("expected id 123, got %q", out.ID)
		}
	})
}

// refreshBackend serves /data, accepting only the current session token, and
// /auth/refresh-token, which rotates it.
type refreshBackend struct {
	hits *tu.HitCounter

	mu      sync.Mutex
	valid   string
	next    string
	status  int
	body    any
	release func()
}

func (b *refreshBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Record(r)

		switch r.URL.Path {
		case refreshPath:
			if b.release != nil {
				b.release()
			}

			b.mu.Lock()
			status, body := b.status, b.body
			if status == 0 {
				status = http.StatusOK
				body = map[string]any{"access_token": "A-" + b.next, "expires_in": 3600, "session_token": b.next}
				b.valid = b.next
			}
			b.mu.Unlock()

			tu.WriteJSON(w, status, body)
		case "/data", verifyPath:
			b.mu.Lock()
			valid := b.valid
			b.mu.Unlock()

			if r.Header.Get("Authorization") != "Bearer "+valid {
				tu.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
				return
			}
			tu.WriteJSON(w, http.StatusOK, map[string]string{"ok": "true"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestTokenRefresh(t *testing.T) {
	t.Run("Replays With Refreshed Session Token", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T2", next: "T2"}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		if _, err := api.Get(context.Background(), "/data"); err != nil {
			t.Fatalf("expected replay to succeed, got %v", err)
		}

		auths := backend.hits.Authorizations("/data")
		if len(auths) != 2 || auths[0] != "Bearer T1" || auths[1] != "Bearer T2" {
			t.Errorf("expected T1 then T2, got %v", auths)
		}
		if backend.hits.Authorizations(refreshPath)[0] != "Bearer T1" {
			t.Error("expected refresh to present the expired session token")
		}

		if v, _ := api.Store().Get(models.SessionToken); v != "T2" {
			t.Errorf("expected stored session T2, got %q", v)
		}
		if v, _ := api.Store().Get(models.AccessToken); v != "A-T2" {
			t.Errorf("expected stored access token A-T2, got %q", v)
		}
		if _, ok := api.Store().Get(models.AccessTokenExpiry); !ok {
			t.Error("expected access token expiry to be stored")
		}
	})

	t.Run("Replays With Access Token When No Session Token Returned", func(t *testing.T) {
		backend := &refreshBackend{
			hits:   tu.NewHitCounter(),
			valid:  "A-only",
			status: http.StatusOK,
			body:   map[string]any{"access_token": "A-only", "expires_in": 60},
		}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		if _, err := api.Get(context.Background(), "/data"); err != nil {
			t.Fatalf("expected replay to succeed, got %v", err)
		}
		if v, _ := api.Store().Get(models.SessionToken); v != "T1" {
			t.Errorf("expected session token untouched, got %q", v)
		}
	})

	t.Run("Concurrent 401s Share One Refresh", func(t *testing.T) {
		const callers = 3
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T2", next: "T2"}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		backend.release = func() {
			waitFor(t, func() bool { return api.refresh.pending() == callers-1 })
		}

		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = api.Get(context.Background(), "/data")
			}()
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Errorf("caller %d: expected success, got %v", i, err)
			}
		}
		if hits := backend.hits.Hits(refreshPath); hits != 1 {
			t.Errorf("expected exactly one refresh, got %d", hits)
		}

		replays := 0
		for _, auth := range backend.hits.Authorizations("/data") {
			if auth == "Bearer T2" {
				replays++
			}
		}
		if replays != callers {
			t.Errorf("expected %d replays with T2, got %d", callers, replays)
		}
		if api.refresh.pending() != 0 {
			t.Error("expected queue to be drained")
		}
	})

	t.Run("Revoked Refresh Ends Session", func(t *testing.T) {
		backend := &refreshBackend{
			hits:   tu.NewHitCounter(),
			valid:  "never",
			status: http.StatusUnauthorized,
			body:   map[string]string{"error": "refresh_token_revoked"},
		}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		api.Store().Set(models.AccessToken, "A1", time.Now().Add(time.Hour))

		var redirects []string
		api.OnLoginRequired(func(path string) { redirects = append(redirects, path) })

		_, err := api.Get(context.Background(), "/data")
		if !errors.Is(err, shared.ErrRefreshRevoked) || !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected revoked refresh failure, got %v", err)
		}

		for _, kind := range models.TokenKinds() {
			if _, ok := api.Store().Get(kind); ok {
				t.Errorf("expected %s to be cleared", kind)
			}
		}
		if len(redirects) != 1 || redirects[0] != "/" {
			t.Errorf("expected one redirect to '/', got %v", redirects)
		}
		if hits := backend.hits.Hits("/data"); hits != 1 {
			t.Errorf("expected no replay after failed refresh, got %d hits", hits)
		}
	})

	t.Run("Failed Refresh Rejects Queued Callers", func(t *testing.T) {
		const callers = 3
		backend := &refreshBackend{
			hits:   tu.NewHitCounter(),
			valid:  "never",
			status: http.StatusInternalServerError,
			body:   map[string]string{"error": "boom"},
		}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		backend.release = func() {
			waitFor(t, func() bool { return api.refresh.pending() == callers-1 })
		}

		var hookCalls sync.WaitGroup
		hookCalls.Add(1)
		api.OnLoginRequired(func(string) { hookCalls.Done() })

		var wg sync.WaitGroup
		errs := make([]error, callers)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = api.Get(context.Background(), "/data")
			}()
		}
		wg.Wait()
		hookCalls.Wait()

		for i, err := range errs {
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("caller %d: expected refresh failure, got %v", i, err)
			}
		}
		if hits := backend.hits.Hits(refreshPath); hits != 1 {
			t.Errorf("expected exactly one refresh, got %d", hits)
		}
	})

	t.Run("Replayed Request Is Not Refreshed Again", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "unreachable", next: "T2"}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			backend.handler(t).ServeHTTP(w, r)
			backend.mu.Lock()
			backend.valid = "unreachable"
			backend.mu.Unlock()
		}))
		defer server.Close()

		_, err := newSessionAPI(t, server, "T1").Get(context.Background(), "/data")
		if StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected 401 from replay, got %v", err)
		}
		if hits := backend.hits.Hits(refreshPath); hits != 1 {
			t.Errorf("expected one refresh, got %d", hits)
		}
		if hits := backend.hits.Hits("/data"); hits != 2 {
			t.Errorf("expected original plus one replay, got %d", hits)
		}
	})

	t.Run("Verify Route Is Never Refreshed", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T2", next: "T2"}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		_, err := newSessionAPI(t, server, "T1").Get(context.Background(), verifyPath)
		if StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
		if hits := backend.hits.Hits(refreshPath); hits != 0 {
			t.Errorf("expected no refresh, got %d", hits)
		}
	})

	t.Run("Transport Errors Are Not Refreshed", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}
		api := NewAPIService("http://example.com", client)

		called := false
		api.OnLoginRequired(func(string) { called = true })

		_, err := api.Get(context.Background(), "/data")
		if err == nil || !strings.Contains(err.Error(), "request failed") {
			t.Errorf("expected 'request failed' error, got %v", err)
		}
		if errors.Is(err, shared.ErrRefreshFailed) || called {
			t.Error("expected transport failure to bypass refresh")
		}
	})

	t.Run("Unauthenticated 401 Is Not Refreshed", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T1", next: "T2"}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "")
		called := false
		api.OnLoginRequired(func(string) { called = true })

		_, err := api.Get(context.Background(), "/data")
		if StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
		if hits := backend.hits.Hits(refreshPath); hits != 0 {
			t.Errorf("expected no refresh without a session, got %d", hits)
		}
		if called {
			t.Error("expected no login redirect")
		}
	})

	t.Run("Requests After Failed Refresh Do Not Refresh Again", func(t *testing.T) {
		backend := &refreshBackend{
			hits:   tu.NewHitCounter(),
			valid:  "never",
			status: http.StatusUnauthorized,
			body:   map[string]string{"error": "refresh_token_revoked"},
		}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		redirects := 0
		api.OnLoginRequired(func(string) { redirects++ })

		if _, err := api.Get(context.Background(), "/data"); !errors.Is(err, shared.ErrRefreshRevoked) {
			t.Fatalf("expected revoked refresh, got %v", err)
		}
		if _, err := api.Get(context.Background(), "/data"); StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected plain 401 after the session ended, got %v", err)
		}

		if hits := backend.hits.Hits(refreshPath); hits != 1 {
			t.Errorf("expected exactly one refresh, got %d", hits)
		}
		if redirects != 1 {
			t.Errorf("expected one login redirect, got %d", redirects)
		}
		auths := backend.hits.Authorizations("/data")
		if len(auths) != 2 || auths[0] != "Bearer T1" || auths[1] != "" {
			t.Errorf("expected second request without a bearer, got %q", auths)
		}
	})

	t.Run("Cancelled Leader Still Completes Refresh", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T2", next: "T2"}
		ctx, cancel := context.WithCancel(context.Background())
		backend.release = cancel

		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		_, _ = api.Get(ctx, "/data")

		if v, _ := api.Store().Get(models.SessionToken); v != "T2" {
			t.Errorf("expected refreshed session to be stored, got %q", v)
		}
	})
}

func TestProviderToken(t *testing.T) {
	t.Run("Fresh Token Needs No Network", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("unexpected call"))}
		api := NewAPIService("http://example.com", client)
		api.Store().Set(models.AccessToken, "A1", time.Now().Add(time.Hour))

		token, err := api.ProviderToken(context.Background())
		if err != nil || token != "A1" {
			t.Errorf("expected A1, got %q (%v)", token, err)
		}
	})

	t.Run("Expired Token Is Refreshed", func(t *testing.T) {
		backend := &refreshBackend{hits: tu.NewHitCounter(), valid: "T2", next: "T2"}
		server := httptest.NewServer(backend.handler(t))
		defer server.Close()

		api := newSessionAPI(t, server, "T1")
		api.Store().Set(models.AccessToken, "A1", time.Now().Add(-time.Minute))

		token, err := api.ProviderToken(context.Background())
		if err != nil {
			t.Fatalf("expected refresh to succeed, got %v", err)
		}
		if token != "A-T2" {
			t.Errorf("expected A-T2, got %q", token)
		}
	})

	t.Run("Missing Token", func(t *testing.T) {
		_, err := NewAPIService("http://example.com", nil).ProviderToken(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestExpiryFromString(t *testing.T) {
	got, err := ExpiryFromString("1700000000")
	if err != nil || got.Unix() != 1700000000 {
		t.Errorf("unexpected result %v (%v)", got, err)
	}

	if _, err := ExpiryFromString("soon"); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
