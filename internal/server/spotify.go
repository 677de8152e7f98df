package server

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/tunescope/internal/analysis"
	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

// tokenCache keeps one Spotify token source per user so access tokens are reused
// across requests and refreshed only when they expire.
type tokenCache struct {
	spotify *services.SpotifyService
	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func newTokenCache(spotify *services.SpotifyService) *tokenCache {
	return &tokenCache{spotify: spotify, sources: make(map[string]oauth2.TokenSource)}
}

// remember replaces the user's source with one starting from token.
func (c *tokenCache) remember(userID string, token *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[userID] = c.spotify.TokenSource(context.Background(), token)
}

func (c *tokenCache) forget(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, userID)
}

// source returns the user's cached source, creating one from the stored refresh token.
func (c *tokenCache) source(user *models.User) (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.sources[user.ID()]; ok {
		return ts, nil
	}
	if user.RefreshToken() == "" {
		return nil, fmt.Errorf("%w: user %s has no Spotify refresh token", shared.ErrNotAuthenticated, user.ID())
	}

	ts := c.spotify.TokenSource(context.Background(), &oauth2.Token{RefreshToken: user.RefreshToken()})
	c.sources[user.ID()] = ts
	return ts, nil
}

// spotifyFor returns a Web API client acting as user.
func (s *Server) spotifyFor(ctx context.Context, user *models.User) (*services.SpotifyClient, error) {
	ts, err := s.tokens.source(user)
	if err != nil {
		return nil, err
	}
	return s.app.Spotify.ForTokenSource(ctx, ts), nil
}

// genreLookup resolves artist genres through the Web API.
type genreLookup struct {
	client *services.SpotifyClient
}

func (g genreLookup) ArtistGenres(ctx context.Context, ids []string) (map[string][]string, error) {
	artists, err := g.client.SeveralArtists(ctx, ids)
	if err != nil {
		return nil, err
	}

	genres := make(map[string][]string, len(artists))
	for _, a := range artists {
		if a.Genres == nil {
			genres[a.ID] = []string{}
			continue
		}
		genres[a.ID] = a.Genres
	}
	return genres, nil
}

func trackInput(item services.SpotifyPlaylistTrack) analysis.TrackInput {
	t := item.Track
	names := make([]string, len(t.Artists))
	ids := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i], ids[i] = a.Name, a.ID
	}

	sample := models.TrackSample{
		ID:          t.ID,
		Name:        t.Name,
		Artists:     names,
		Album:       t.Album.Name,
		ImageURL:    services.ImageURL(t.Album.Images),
		Popularity:  t.Popularity,
		AddedAt:     item.AddedAt,
		ReleaseDate: t.Album.ReleaseDate,
		Explicit:    t.Explicit,
	}
	if len(names) > 0 {
		sample.PrimaryArtist = names[0]
	}
	return analysis.TrackInput{TrackSample: sample, ArtistIDs: ids}
}

// loadPlaylist fetches a playlist's metadata and every track for analysis.
func loadPlaylist(ctx context.Context, client *services.SpotifyClient, playlistID string) (analysis.Playlist, error) {
	meta, err := client.Playlist(ctx, playlistID)
	if err != nil {
		return analysis.Playlist{}, err
	}

	items, err := client.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return analysis.Playlist{}, err
	}

	tracks := make([]analysis.TrackInput, len(items))
	for i, item := range items {
		tracks[i] = trackInput(item)
	}

	return analysis.Playlist{ID: playlistID, Name: meta.Name, Description: meta.Description, Tracks: tracks}, nil
}

func trackSummary(t services.SpotifyTrack) models.TrackSummary {
	s := models.TrackSummary{
		ID:         t.ID,
		Name:       t.Name,
		Album:      t.Album.Name,
		ImageURL:   services.ImageURL(t.Album.Images),
		Popularity: t.Popularity,
		PreviewURL: t.PreviewURL,
	}
	if len(t.Artists) > 0 {
		s.Artist = t.Artists[0].Name
	}
	return s
}

func images(in []services.SpotifyImage) []models.Image {
	out := make([]models.Image, len(in))
	for i, img := range in {
		out[i] = models.Image{URL: img.URL, Height: img.Height, Width: img.Width}
	}
	return out
}
