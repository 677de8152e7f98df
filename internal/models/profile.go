package models

// Image is a Spotify image reference.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// UserProfile is the profile returned by GET /user/profile.
type UserProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Email       string  `json:"email,omitempty"`
	Images      []Image `json:"images"`
	Country     string  `json:"country,omitempty"`
	Product     string  `json:"product,omitempty"`
}

// PlaylistSummary is one entry of GET /user/playlists.
type PlaylistSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	TrackCount  int     `json:"track_count"`
	Public      bool    `json:"public"`
	Images      []Image `json:"images"`
}

// TrackSummary is the flattened track shape used by the stats endpoints.
type TrackSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ImageURL   string `json:"image_url,omitempty"`
	Popularity int    `json:"popularity,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
	PlayedAt   string `json:"played_at,omitempty"`
}

// ArtistSummary is the flattened artist shape used by the stats endpoints.
type ArtistSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
	ImageURL   string   `json:"image_url,omitempty"`
}

// GenreCount is a genre and how many artists or tracks carry it.
type GenreCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListResponse wraps collection responses.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// NewListResponse builds a list response, never with a nil slice.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}

// GenreResponse wraps genre distributions.
type GenreResponse struct {
	Genres []GenreCount `json:"genres"`
	Total  int          `json:"total"`
}
