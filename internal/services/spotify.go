// Spotify Web API client used by the backend
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"

	defaultSpotifyRPS        = 10
	defaultSpotifyMaxRetries = 3
	defaultSpotifyBackoff    = 500 * time.Millisecond
	spotifyPageSize          = 50
	spotifyArtistBatch       = 50
)

var spotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"user-read-recently-played",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	PreviewURL string          `json:"preview_url"`
}

// SpotifyArtist represents a Spotify artist. Genres and Popularity are only
// populated on full artist objects.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Popularity int            `json:"popularity"`
	Images     []SpotifyImage `json:"images"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
}

// Owner is the owner of a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
// Track is nil for local files and removed tracks.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

type playlistTrackPage struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist with its first page of tracks.
type SpotifyPlaylist struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Owner       Owner             `json:"owner"`
	Public      bool              `json:"public"`
	Tracks      playlistTrackPage `json:"tracks"`
	Images      []SpotifyImage    `json:"images"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       Owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

// SpotifyPlayHistory is one entry of the recently played endpoint.
type SpotifyPlayHistory struct {
	Track    SpotifyTrack `json:"track"`
	PlayedAt time.Time    `json:"played_at"`
}

// SpotifyOption configures a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithSpotifyBaseURL points API calls at another host. Used by tests.
func WithSpotifyBaseURL(u string) SpotifyOption {
	return func(s *SpotifyService) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithSpotifyEndpoint overrides the accounts service endpoint. Used by tests.
func WithSpotifyEndpoint(e oauth2.Endpoint) SpotifyOption {
	return func(s *SpotifyService) { s.config.Endpoint = e }
}

// WithSpotifyRetry sets the attempt count and base backoff for retried requests.
func WithSpotifyRetry(maxRetries int, backoff time.Duration) SpotifyOption {
	return func(s *SpotifyService) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if backoff > 0 {
			s.backoff = backoff
		}
	}
}

// WithSpotifyRateLimit caps outbound requests per second across all users.
func WithSpotifyRateLimit(rps float64) SpotifyOption {
	return func(s *SpotifyService) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
	}
}

// WithSpotifyLogger sets the logger used for retry warnings.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSpotifyHTTPClient sets the base client used for token exchange and API calls.
func WithSpotifyHTTPClient(c *http.Client) SpotifyOption {
	return func(s *SpotifyService) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// SpotifyService performs the OAuth2 flow against Spotify and hands out per-user API clients.
//
// All clients share one rate limiter.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:5000/api/auth/callback"
	}

	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       spotifyScopes,
			Endpoint:     spotify.Endpoint,
		},
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(defaultSpotifyRPS), defaultSpotifyRPS),
		maxRetries: defaultSpotifyMaxRetries,
		backoff:    defaultSpotifyBackoff,
		logger:     shared.NewLogger(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSpotifyServiceFromConfig wires credentials and analysis tuning from the config.
func NewSpotifyServiceFromConfig(cfg *shared.Config, logger *log.Logger) (*SpotifyService, error) {
	return NewSpotifyService(cfg.Credentials.Spotify.Map(),
		WithSpotifyRateLimit(cfg.Analysis.SpotifyRequestsPerSecond),
		WithSpotifyRetry(cfg.Analysis.SpotifyMaxRetries, time.Duration(cfg.Analysis.SpotifyRetryBackoffMS)*time.Millisecond),
		WithSpotifyLogger(logger),
	)
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for tokens.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh obtains a new access token. A grant Spotify rejects as invalid maps to
// [shared.ErrRefreshRevoked].
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%w: %w", shared.ErrRefreshRevoked, err)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// TokenSource returns a source that yields token until it expires and refreshes it
// through the accounts service afterwards. A token holding only a refresh token is
// refreshed on first use. ctx bounds every refresh, so it should outlive single requests.
func (s *SpotifyService) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return s.config.TokenSource(s.oauthContext(ctx), token)
}

// ForToken returns an API client acting as the owner of token.
func (s *SpotifyService) ForToken(ctx context.Context, token *oauth2.Token) *SpotifyClient {
	return s.ForTokenSource(ctx, s.TokenSource(ctx, token))
}

// ForTokenSource returns an API client authorizing every request with a token from ts.
func (s *SpotifyService) ForTokenSource(ctx context.Context, ts oauth2.TokenSource) *SpotifyClient {
	return &SpotifyClient{
		service:    s,
		httpClient: oauth2.NewClient(s.oauthContext(ctx), ts),
	}
}

// SpotifyClient reads the Web API on behalf of one user.
type SpotifyClient struct {
	service    *SpotifyService
	httpClient *http.Client
}

// SpotifyError is a non-2xx Web API response.
type SpotifyError struct {
	StatusCode int
	Endpoint   string
}

func (e *SpotifyError) Error() string {
	return fmt.Sprintf("spotify API error: %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *SpotifyError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return shared.ErrUnauthorized
	case http.StatusNotFound:
		return shared.ErrNotFound
	case http.StatusTooManyRequests:
		return shared.ErrRateLimited
	default:
		return shared.ErrAPIRequest
	}
}

// doRequest performs a rate-limited, retried GET against the Web API and decodes the body.
func (c *SpotifyClient) doRequest(ctx context.Context, endpoint string, result any) error {
	s := c.service
	apiURL := s.baseURL + endpoint

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			return decodeSpotify(resp, endpoint, result)
		}

		attemptNum := attempt + 1
		if err != nil {
			s.logger.Warnf("spotify retry attempt %d/%d after error: %v", attemptNum, s.maxRetries, err)
		} else {
			s.logger.Warnf("spotify retry attempt %d/%d after status %d", attemptNum, s.maxRetries, resp.StatusCode)
			resp.Body.Close()
		}

		if attempt == s.maxRetries-1 {
			if err != nil {
				return fmt.Errorf("request failed after %d attempts: %w", s.maxRetries, err)
			}
			return fmt.Errorf("request failed after %d attempts: %w", s.maxRetries, &SpotifyError{StatusCode: resp.StatusCode, Endpoint: endpoint})
		}

		backoff := s.backoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
	}

	return fmt.Errorf("request failed after %d attempts", s.maxRetries)
}

func decodeSpotify(resp *http.Response, endpoint string, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SpotifyError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// Context errors are final.
		return 0, !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return 0, false
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}

	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if d, err := time.ParseDuration(retryAfter + "s"); err == nil && d > 0 {
		return d
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > spotifyPageSize {
		return spotifyPageSize
	}
	return limit
}

// UserProfile retrieves the current authenticated user's profile.
func (c *SpotifyClient) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserPlaylists retrieves the current user's playlists with pagination.
func (c *SpotifyClient) UserPlaylists(ctx context.Context, limit, offset int) (*SpotifyPaginatedPlaylists, error) {
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", clampLimit(limit), offset)

	var response SpotifyPaginatedPlaylists
	if err := c.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// AllPlaylists walks every page of the current user's playlists.
func (c *SpotifyClient) AllPlaylists(ctx context.Context) ([]SpotifySimplePlaylist, error) {
	var all []SpotifySimplePlaylist
	offset := 0

	for {
		page, err := c.UserPlaylists(ctx, spotifyPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += spotifyPageSize
	}

	return all, nil
}

// Playlist retrieves a playlist by ID.
func (c *SpotifyClient) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	endpoint := "/playlists/" + url.PathEscape(playlistID)

	var playlist SpotifyPlaylist
	if err := c.doRequest(ctx, endpoint, &playlist); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
		}
		return nil, err
	}
	return &playlist, nil
}

// PlaylistTracks retrieves every track of a playlist, skipping local files and removed tracks.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string) ([]SpotifyPlaylistTrack, error) {
	var tracks []SpotifyPlaylistTrack
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), spotifyPageSize, offset)

		var page playlistTrackPage
		if err := c.doRequest(ctx, endpoint, &page); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
			}
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, item)
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += spotifyPageSize
	}

	return tracks, nil
}

// SeveralArtists retrieves full artist objects, batching ids by 50.
func (c *SpotifyClient) SeveralArtists(ctx context.Context, artistIDs []string) ([]SpotifyArtist, error) {
	var artists []SpotifyArtist

	for start := 0; start < len(artistIDs); start += spotifyArtistBatch {
		end := min(start+spotifyArtistBatch, len(artistIDs))
		endpoint := "/artists?ids=" + url.QueryEscape(strings.Join(artistIDs[start:end], ","))

		var response struct {
			Artists []*SpotifyArtist `json:"artists"`
		}
		if err := c.doRequest(ctx, endpoint, &response); err != nil {
			return nil, err
		}

		for _, a := range response.Artists {
			if a != nil {
				artists = append(artists, *a)
			}
		}
	}

	return artists, nil
}

// ValidTimeRange reports whether r is accepted by the top items endpoints.
func ValidTimeRange(r string) bool {
	switch r {
	case "short_term", "medium_term", "long_term":
		return true
	}
	return false
}

// TopTracks retrieves the user's top tracks for a time range.
func (c *SpotifyClient) TopTracks(ctx context.Context, timeRange string, limit int) ([]SpotifyTrack, error) {
	endpoint := fmt.Sprintf("/me/top/tracks?time_range=%s&limit=%d", url.QueryEscape(timeRange), clampLimit(limit))

	var response struct {
		Items []SpotifyTrack `json:"items"`
	}
	if err := c.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// TopArtists retrieves the user's top artists for a time range.
func (c *SpotifyClient) TopArtists(ctx context.Context, timeRange string, limit int) ([]SpotifyArtist, error) {
	endpoint := fmt.Sprintf("/me/top/artists?time_range=%s&limit=%d", url.QueryEscape(timeRange), clampLimit(limit))

	var response struct {
		Items []SpotifyArtist `json:"items"`
	}
	if err := c.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// RecentlyPlayed retrieves the user's most recent plays.
func (c *SpotifyClient) RecentlyPlayed(ctx context.Context, limit int) ([]SpotifyPlayHistory, error) {
	endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", clampLimit(limit))

	var response struct {
		Items []SpotifyPlayHistory `json:"items"`
	}
	if err := c.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// ImageURL returns the first image's URL, or "".
func ImageURL(images []SpotifyImage) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
