package server

import (
	"net/http"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/services"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	me, err := client.UserProfile(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.UserProfile{
		ID:          me.ID,
		DisplayName: me.DisplayName,
		Email:       me.Email,
		Images:      images(me.Images),
		Country:     me.Country,
		Product:     me.Product,
	})
}

func (s *Server) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	client, ok := s.client(w, r)
	if !ok {
		return
	}

	playlists, err := client.AllPlaylists(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]models.PlaylistSummary, len(playlists))
	for i, p := range playlists {
		items[i] = models.PlaylistSummary{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Owner:       p.Owner.DisplayName,
			TrackCount:  p.Tracks.Total,
			Public:      p.Public,
			Images:      images(p.Images),
		}
	}
	writeJSON(w, http.StatusOK, models.NewListResponse(items))
}

// client resolves the Spotify client of the authenticated user, writing the error
// response itself when it cannot.
func (s *Server) client(w http.ResponseWriter, r *http.Request) (*services.SpotifyClient, bool) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}

	client, err := s.spotifyFor(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return client, true
}
