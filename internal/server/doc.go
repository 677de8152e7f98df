// Package server implements the tunescope backend API and the CLI's login callback listener.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally, mounts every route under a
// prefix (/api by default) and answers unsupported methods with a JSON 405.
//
// # Backend
//
// [New] wires the backend from an [App]: Spotify login and session tokens under /auth,
// profile and playlists under /user, listening statistics and playlist analyses under /stats.
// Protected routes sit behind [RequireSession], which verifies the bearer session token and puts
// the user in the request context ([UserFrom]).
//
// Spotify access tokens never leave the server except through login and refresh responses.
// Each user gets one cached token source built from the stored refresh token.
//
// Advanced analyses are cached per playlist and concurrent requests for the same playlist
// share a single computation.
//
// # Callback Handler
//
// [CallbackHandler] runs on the CLI's temporary localhost listener during `tunescope auth login`.
// It captures the parameters the backend appends to its post-login redirect and sends them
// through a channel exactly once.
package server
