// API service for making authenticated HTTP requests to the tunescope backend

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	defaultBaseURL = "http://localhost:5000/api"
	defaultTimeout = 10 * time.Second

	refreshPath = "/auth/refresh-token"
	verifyPath  = "/auth/verify-token"
)

// APIService issues requests against the backend API.
//
// Every request carries the stored session token as a bearer credential. A 401 on any
// route other than refresh and verification triggers one coalesced token refresh, after
// which the request is replayed once with the new credential.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	timeout    time.Duration
	logger     *log.Logger
	refresh    *refresher

	hookMu sync.Mutex
	hooks  []func(path string)
}

// APIOption configures an [APIService].
type APIOption func(*APIService)

// WithTokenStore sets the credential store. Defaults to an in-memory store.
func WithTokenStore(store TokenStore) APIOption {
	return func(a *APIService) { a.store = store }
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) APIOption {
	return func(a *APIService) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used for refresh diagnostics.
func WithLogger(l *log.Logger) APIOption {
	return func(a *APIService) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAPIService creates a new API client for the backend at baseURL.
func NewAPIService(baseURL string, client *http.Client, opts ...APIOption) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	a := &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		timeout:    defaultTimeout,
		logger:     shared.NewLogger(io.Discard),
		refresh:    &refresher{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = repositories.NewMemoryTokenStore()
	}
	return a
}

// OnLoginRequired registers a hook invoked with the login route ("/") when a refresh fails
// and the session is over.
func (a *APIService) OnLoginRequired(fn func(path string)) {
	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	a.hooks = append(a.hooks, fn)
}

func (a *APIService) loginRequired() {
	a.hookMu.Lock()
	hooks := append([]func(string){}, a.hooks...)
	a.hookMu.Unlock()

	for _, fn := range hooks {
		fn("/")
	}
}

// Store returns the credential store.
func (a *APIService) Store() TokenStore { return a.store }

// BaseURL returns the API base URL.
func (a *APIService) BaseURL() string { return a.baseURL }

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header

	retried bool
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Path       string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.StatusCode)
}

// Message returns the "error" field of a JSON error body, if any.
func (e *HTTPError) Message() string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	return body.Error
}

// Unwrap maps the status to a sentinel so callers can use [errors.Is].
func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return shared.ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// StatusCode extracts the HTTP status from an error returned by [APIService], or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Do sends req and returns the response for 2xx statuses.
//
// Transport failures are returned as-is and never trigger a refresh.
func (a *APIService) Do(ctx context.Context, req *Request) (*APIResponse, error) {
	token, _ := a.store.Get(models.SessionToken)

	resp, err := a.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	// Requests sent without a session are never refreshed, so a failed refresh stays terminal.
	if resp.StatusCode == http.StatusUnauthorized && token != "" && a.refreshable(req) {
		req.retried = true

		bearer, err := a.refreshSession(ctx)
		if err != nil {
			return nil, err
		}

		resp, err = a.send(ctx, req, bearer)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Path: req.Path, Body: resp.Body}
	}

	return resp, nil
}

func (a *APIService) refreshable(req *Request) bool {
	if req.retried {
		return false
	}
	path := req.Path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path != refreshPath && path != verifyPath
}

// send performs a single round trip under the per-request timeout.
func (a *APIService) send(ctx context.Context, r *Request, bearer string) (*APIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+r.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	if data == nil {
		data = []byte{}
	}
	return a.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: data})
}

// GetJSON performs a GET request and decodes the JSON body into out.
func (a *APIService) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := a.Get(ctx, path)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// PostJSON encodes in as the request body, performs a POST and decodes the response into out.
// A nil out discards the response body.
func (a *APIService) PostJSON(ctx context.Context, path string, in, out any) error {
	var data []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		data = encoded
	}

	resp, err := a.Post(ctx, path, data)
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

func decodeBody(resp *APIResponse, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
