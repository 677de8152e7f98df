package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/desertthunder/tunescope/internal/analysis"
	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	defaultTimeRange   = "medium_term"
	defaultTopLimit    = 20
	recentlyPlayedSize = 50
	genreArtistLimit   = 50
)

// timeRangeAndLimit reads the time_range and limit query parameters.
func timeRangeAndLimit(r *http.Request) (string, int, error) {
	q := r.URL.Query()

	timeRange := q.Get("time_range")
	if timeRange == "" {
		timeRange = defaultTimeRange
	}
	if !services.ValidTimeRange(timeRange) {
		return "", 0, fmt.Errorf("%w: time_range must be short_term, medium_term or long_term", shared.ErrInvalidInput)
	}

	limit := defaultTopLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 50 {
			return "", 0, fmt.Errorf("%w: limit must be between 1 and 50", shared.ErrInvalidInput)
		}
		limit = n
	}
	return timeRange, limit, nil
}

// handleRecentlyPlayed returns the user's last plays and records them as listening history.
func (s *Server) handleRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFrom(r.Context())
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	plays, err := client.RecentlyPlayed(r.Context(), recentlyPlayedSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]models.TrackSummary, 0, len(plays))
	recorded := 0
	for _, play := range plays {
		summary := trackSummary(play.Track)
		summary.PlayedAt = play.PlayedAt.UTC().Format(time.RFC3339)
		items = append(items, summary)

		stored, err := s.record(user, summary, play.PlayedAt)
		if err != nil {
			s.logger.Warn("failed to record play", "user", user.ID(), "track", summary.ID, "err", err)
			continue
		}
		if stored {
			recorded++
		}
	}

	s.logger.Debug("recently played", "user", user.ID(), "items", len(items), "recorded", recorded)
	writeJSON(w, http.StatusOK, models.NewListResponse(items))
}

func (s *Server) record(user *models.User, t models.TrackSummary, playedAt time.Time) (bool, error) {
	track := models.NewTrack(models.TrackFields{
		SpotifyID:  t.ID,
		Name:       t.Name,
		Artist:     t.Artist,
		Album:      t.Album,
		ImageURL:   t.ImageURL,
		Popularity: t.Popularity,
		PreviewURL: t.PreviewURL,
	})
	if err := s.app.Tracks.Upsert(track); err != nil {
		return false, err
	}
	return s.app.History.Record(user.ID(), track.ID(), playedAt)
}

func (s *Server) handleTopTracks(w http.ResponseWriter, r *http.Request) {
	timeRange, limit, err := timeRangeAndLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	tracks, err := client.TopTracks(r.Context(), timeRange, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]models.TrackSummary, len(tracks))
	for i, t := range tracks {
		items[i] = trackSummary(t)
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(items))
}

func (s *Server) handleTopArtists(w http.ResponseWriter, r *http.Request) {
	timeRange, limit, err := timeRangeAndLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	artists, err := client.TopArtists(r.Context(), timeRange, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]models.ArtistSummary, len(artists))
	for i, a := range artists {
		items[i] = artistSummary(a)
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(items))
}

func artistSummary(a services.SpotifyArtist) models.ArtistSummary {
	genres := a.Genres
	if genres == nil {
		genres = []string{}
	}
	return models.ArtistSummary{
		ID:         a.ID,
		Name:       a.Name,
		Genres:     genres,
		Popularity: a.Popularity,
		ImageURL:   services.ImageURL(a.Images),
	}
}

// genreCounts tallies genres over artists, most frequent first and ties by name.
func genreCounts(artists []services.SpotifyArtist) models.GenreResponse {
	counts := make(map[string]int)
	for _, a := range artists {
		for _, g := range a.Genres {
			counts[g]++
		}
	}

	genres := make([]models.GenreCount, 0, len(counts))
	for name, n := range counts {
		genres = append(genres, models.GenreCount{Name: name, Count: n})
	}
	sort.Slice(genres, func(i, j int) bool {
		if genres[i].Count != genres[j].Count {
			return genres[i].Count > genres[j].Count
		}
		return genres[i].Name < genres[j].Name
	})
	return models.GenreResponse{Genres: genres, Total: len(genres)}
}

func (s *Server) handleGenreDistribution(w http.ResponseWriter, r *http.Request) {
	timeRange, _, err := timeRangeAndLimit(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	artists, err := client.TopArtists(r.Context(), timeRange, genreArtistLimit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, genreCounts(artists))
}

// handlePlaylistGenres counts the genres of every distinct artist credited on the playlist.
func (s *Server) handlePlaylistGenres(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	items, err := client.PlaylistTracks(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		for _, a := range item.Track.Artists {
			if a.ID != "" && !seen[a.ID] {
				seen[a.ID] = true
				ids = append(ids, a.ID)
			}
		}
	}

	artists, err := client.SeveralArtists(r.Context(), ids)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, genreCounts(artists))
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	items, err := client.PlaylistTracks(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(items))
}

type notEnoughTracksBody struct {
	Error          string `json:"error"`
	TotalTracks    int    `json:"total_tracks"`
	AnalyzedTracks int    `json:"analyzed_tracks"`
}

func (s *Server) handleSimpleAnalysis(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	playlist, err := loadPlaylist(r.Context(), client, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	set, err := s.app.Analyzer.Simple(playlist)
	if errors.Is(err, shared.ErrNotEnoughTracks) {
		writeJSON(w, http.StatusBadRequest, notEnoughTracksBody{
			Error:       "Not enough tracks for meaningful analysis",
			TotalTracks: len(playlist.Tracks),
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

type mlErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleMLAnalysis serves the k-means clustering on its own, uncached.
func (s *Server) handleMLAnalysis(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	playlist, err := loadPlaylist(r.Context(), client, r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if len(playlist.Tracks) < analysis.MinMLTracks {
		writeJSON(w, http.StatusBadRequest, mlErrorBody{
			Error:   "Not enough tracks for ML analysis",
			Message: fmt.Sprintf("ML analysis requires at least %d tracks for meaningful results", analysis.MinMLTracks),
		})
		return
	}

	genres, err := genreLookup{client: client}.ArtistGenres(r.Context(), playlist.PrimaryArtistIDs())
	if err != nil {
		s.logger.Warn("genre lookup failed, clustering without genres", "playlist", playlist.ID, "err", err)
		genres = nil
	}

	set, err := s.app.Analyzer.ML(playlist, genres)
	if err != nil {
		s.fail(w, r, fmt.Errorf("ML analysis failed: %w", err))
		return
	}

	set.BalanceWarning = analysis.Imbalanced(set)
	if set.BalanceWarning {
		s.logger.Warn("imbalanced ML clustering", "playlist", playlist.ID, "clusters", len(set.Clusters))
	}
	writeJSON(w, http.StatusOK, set)
}

// handleAdvancedAnalysis serves the cached analysis when fresh, otherwise computes it.
// Concurrent requests for the same playlist share one computation.
func (s *Server) handleAdvancedAnalysis(w http.ResponseWriter, r *http.Request) {
	playlistID := r.PathValue("id")
	user, _ := UserFrom(r.Context())

	if cached, err := s.app.Cache.Get(playlistID, repositories.CacheAdvanced); err == nil {
		writeJSON(w, http.StatusOK, cached)
		return
	} else if !errors.Is(err, shared.ErrCacheMiss) {
		s.logger.Warn("analysis cache read failed", "playlist", playlistID, "err", err)
	}

	client, ok := s.client(w, r)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	v, err, coalesced := s.flights.Do(playlistID, func() (any, error) {
		return s.advanced(ctx, client, playlistID)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Debug("advanced analysis", "playlist", playlistID, "user", user.ID(), "shared", coalesced)
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) advanced(ctx context.Context, client *services.SpotifyClient, playlistID string) (*models.AnalysisResult, error) {
	playlist, err := loadPlaylist(ctx, client, playlistID)
	if err != nil {
		return nil, err
	}

	result, err := s.app.Analyzer.Advanced(ctx, playlist, genreLookup{client: client})
	if err != nil {
		return nil, fmt.Errorf("base analysis failed: %w", err)
	}

	if err := s.app.Cache.Save(playlistID, repositories.CacheAdvanced, &result); err != nil {
		s.logger.Warn("failed to cache analysis", "playlist", playlistID, "err", err)
	}
	return &result, nil
}
