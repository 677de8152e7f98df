// Package services holds the HTTP clients of tunescope: the CLI's client of the backend API and the
// backend's client of the Spotify Web API.
//
// # Backend Client
//
// [APIService] attaches the stored session token to every request. When a request comes back 401 it
// runs a token refresh against /auth/refresh-token and replays the request once with the new bearer.
//
// Concurrent 401s share a single refresh: the first caller performs it while later callers queue and
// are resolved, in arrival order, with the same outcome. The refresh and verification routes are never
// refreshed themselves, and a replayed request is never retried again.
//
// A failed refresh clears the token store, rejects every queued caller and invokes the hooks registered
// with [APIService.OnLoginRequired] with the login route "/".
//
// # Analysis
//
// [AnalysisFetcher] requests the advanced analysis of a playlist and, on any failure, the simple one.
// The result is tagged with the [models.Tier] that produced it; a fallback is wrapped as the base
// analysis with no specialized insights.
//
// # Session
//
// [SessionController] drives login, the OAuth callback, logout and verification. Only a 401/403 or an
// explicit invalid verdict ends the session; network failures leave tokens in place.
//
// # Spotify
//
// [SpotifyService] wraps the OAuth2 authorization code flow. [SpotifyService.ForToken] returns a
// [SpotifyClient] whose calls are rate limited across all users and retried with exponential backoff
// on 429 and 5xx responses, honoring Retry-After.
//
// # Error Handling
//
// Non-2xx responses are returned as [HTTPError] or [SpotifyError], both of which unwrap to shared sentinels:
//   - [shared.ErrUnauthorized] : 401 or 403
//   - [shared.ErrNotFound] : 404 (playlists map to [shared.ErrPlaylistNotFound])
//   - [shared.ErrRateLimited] : 429
//   - [shared.ErrServiceUnavailable] : 5xx from the backend
//   - [shared.ErrRefreshFailed], [shared.ErrRefreshRevoked] : the session could not be renewed
package services
