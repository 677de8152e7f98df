package models

import (
	"fmt"
	"time"
)

// Track is a Spotify track recorded from a user's listening history.
type Track struct {
	id         string
	spotifyID  string
	name       string
	artist     string
	album      string
	imageURL   string
	popularity int
	previewURL string
	createdAt  time.Time
}

// TrackFields carries the descriptive attributes of a [Track].
type TrackFields struct {
	SpotifyID  string
	Name       string
	Artist     string
	Album      string
	ImageURL   string
	Popularity int
	PreviewURL string
}

// NewTrack creates an unsaved track.
func NewTrack(f TrackFields) *Track {
	return &Track{
		spotifyID:  f.SpotifyID,
		name:       f.Name,
		artist:     f.Artist,
		album:      f.Album,
		imageURL:   f.ImageURL,
		popularity: f.Popularity,
		previewURL: f.PreviewURL,
		createdAt:  time.Now().UTC(),
	}
}

func (t *Track) ID() string           { return t.id }
func (t *Track) SpotifyID() string    { return t.spotifyID }
func (t *Track) Name() string         { return t.name }
func (t *Track) Artist() string       { return t.artist }
func (t *Track) Album() string        { return t.album }
func (t *Track) ImageURL() string     { return t.imageURL }
func (t *Track) Popularity() int      { return t.popularity }
func (t *Track) PreviewURL() string   { return t.previewURL }
func (t *Track) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt equals CreatedAt; tracks are immutable once stored.
func (t *Track) UpdatedAt() time.Time { return t.createdAt }

func (t *Track) SetID(id string)          { t.id = id }
func (t *Track) SetCreatedAt(c time.Time) { t.createdAt = c }

// Validate checks the fields required for persistence.
func (t *Track) Validate() error {
	if t.spotifyID == "" {
		return fmt.Errorf("spotify id is required")
	}
	if t.name == "" {
		return fmt.Errorf("name is required")
	}
	if t.artist == "" {
		return fmt.Errorf("artist is required")
	}
	return nil
}

// Play is one entry of a user's listening history.
type Play struct {
	ID       string
	UserID   string
	TrackID  string
	PlayedAt time.Time
}
