package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/tunescope/internal/analysis"
	"github.com/desertthunder/tunescope/internal/auth"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// App holds the dependencies of the backend.
type App struct {
	Config   *shared.Config
	Logger   *log.Logger
	Issuer   *auth.Issuer
	Spotify  *services.SpotifyService
	Users    *repositories.UserRepository
	Tracks   *repositories.TrackRepository
	History  *repositories.ListeningHistoryRepository
	Cache    *repositories.AnalysisCacheRepository
	Analyzer *analysis.Analyzer
}

// Server is the backend HTTP API.
type Server struct {
	app     App
	logger  *log.Logger
	router  Router
	states  *stateStore
	tokens  *tokenCache
	flights singleflight.Group
}

// New wires the routes and middleware of the backend.
func New(app App) *Server {
	if app.Logger == nil {
		app.Logger = shared.NewLogger(io.Discard)
	}
	if app.Config == nil {
		app.Config = shared.DefaultConfig()
	}
	if app.Analyzer == nil {
		app.Analyzer = analysis.NewAnalyzer(analysis.ConfigFrom(app.Config.Analysis), app.Logger)
	}

	s := &Server{
		app:    app,
		logger: shared.WithLogger(app.Logger, "component", "server"),
		router: NewBasicRouter(app.Config.Server.Prefix),
		states: newStateStore(loginStateTTL),
		tokens: newTokenCache(app.Spotify),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(Recover(s.logger), RequestLogger(s.logger), CORS(s.app.Config.Server.FrontendURL))

	session := RequireSession(s.app.Issuer, s.app.Users)
	protected := func(h http.HandlerFunc) http.Handler { return session(h) }

	r.Handle(http.MethodGet, "/health", http.HandlerFunc(s.handleHealth))

	r.Handle(http.MethodGet, "/auth/login", http.HandlerFunc(s.handleLogin))
	r.Handle(http.MethodGet, "/auth/callback", http.HandlerFunc(s.handleCallback))
	r.Handle(http.MethodGet, "/auth/verify-token", http.HandlerFunc(s.handleVerify))
	r.Handle(http.MethodPost, "/auth/refresh-token", http.HandlerFunc(s.handleRefresh))
	r.Handle(http.MethodPost, "/auth/logout", http.HandlerFunc(s.handleLogout))

	r.Handle(http.MethodGet, "/user/profile", protected(s.handleProfile))
	r.Handle(http.MethodGet, "/user/playlists", protected(s.handlePlaylists))

	r.Handle(http.MethodGet, "/stats/recently-played", protected(s.handleRecentlyPlayed))
	r.Handle(http.MethodGet, "/stats/top-tracks", protected(s.handleTopTracks))
	r.Handle(http.MethodGet, "/stats/top-artists", protected(s.handleTopArtists))
	r.Handle(http.MethodGet, "/stats/genre-distribution", protected(s.handleGenreDistribution))
	r.Handle(http.MethodGet, "/stats/playlist-genres/{id}", protected(s.handlePlaylistGenres))
	r.Handle(http.MethodGet, "/stats/playlist-tracks/{id}", protected(s.handlePlaylistTracks))
	r.Handle(http.MethodGet, "/stats/simple-playlist-analysis/{id}", protected(s.handleSimpleAnalysis))
	r.Handle(http.MethodGet, "/stats/ml-playlist-analysis/{id}", protected(s.handleMLAnalysis))
	r.Handle(http.MethodGet, "/stats/advanced-playlist-analysis/{id}", protected(s.handleAdvancedAnalysis))
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.app.Config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.app.Config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String(), "prefix", s.app.Config.Server.Prefix)
		errs <- srv.Serve(ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
