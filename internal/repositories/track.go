package repositories

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

var trackColumns = []string{
	"id", "spotify_id", "name", "artist", "album", "image_url", "popularity", "preview_url", "created_at",
}

// TrackRepository implements models.Repository[*models.Track] for tracks seen in listening history.
//
// Tracks are keyed by Spotify id; [TrackRepository.Upsert] is the write path used by the stats handlers.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a new [models.Track] with a generated ID
func (r *TrackRepository) Create(track *models.Track) error {
	track.SetID(shared.GenerateID())

	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query, args, err := sqb.Insert("tracks").
		Columns(trackColumns...).
		Values(track.ID(), track.SpotifyID(), track.Name(), track.Artist(), track.Album(),
			track.ImageURL(), track.Popularity(), track.PreviewURL(), track.CreatedAt()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// Upsert stores the track if its Spotify id is new, otherwise refreshes the mutable
// attributes (popularity, artwork, preview) of the stored row. The track's ID is set
// to the stored row's ID either way.
func (r *TrackRepository) Upsert(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query, args, err := sqb.Insert("tracks").
		Columns(trackColumns...).
		Values(shared.GenerateID(), track.SpotifyID(), track.Name(), track.Artist(), track.Album(),
			track.ImageURL(), track.Popularity(), track.PreviewURL(), track.CreatedAt()).
		Suffix("ON CONFLICT(spotify_id) DO UPDATE SET popularity = excluded.popularity, image_url = excluded.image_url, preview_url = excluded.preview_url").
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}

	var id string
	if err := r.db.QueryRow(query, args...).Scan(&id); err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}

	track.SetID(id)
	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	return r.findOne(sq.Eq{"id": id}, id)
}

// GetBySpotifyID retrieves a track by its Spotify id
func (r *TrackRepository) GetBySpotifyID(spotifyID string) (*models.Track, error) {
	return r.findOne(sq.Eq{"spotify_id": spotifyID}, spotifyID)
}

func (r *TrackRepository) findOne(where sq.Eq, key string) (*models.Track, error) {
	query, args, err := sqb.Select(trackColumns...).From("tracks").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	track, err := scanTrack(r.db.QueryRow(query, args...))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	return track, nil
}

// Update refreshes the mutable attributes of a stored track
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query, args, err := sqb.Update("tracks").
		Set("name", track.Name()).
		Set("artist", track.Artist()).
		Set("album", track.Album()).
		Set("image_url", track.ImageURL()).
		Set("popularity", track.Popularity()).
		Set("preview_url", track.PreviewURL()).
		Where(sq.Eq{"id": track.ID()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	return affected(result, fmt.Errorf("%w: track %s", shared.ErrNotFound, track.ID()))
}

// Delete removes a track and, through the foreign key, its listening history
func (r *TrackRepository) Delete(id string) error {
	query, args, err := sqb.Delete("tracks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	return affected(result, fmt.Errorf("%w: track %s", shared.ErrNotFound, id))
}

// List retrieves tracks matching the given criteria ("artist", "album"), ordered by name
func (r *TrackRepository) List(criteria map[string]any) ([]*models.Track, error) {
	qb := sqb.Select(trackColumns...).From("tracks")
	for _, key := range []string{"artist", "album"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			qb = qb.Where(sq.Eq{key: v})
		}
	}

	query, args, err := qb.OrderBy("name ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

func scanTrack(row scanner) (*models.Track, error) {
	var (
		f                        models.TrackFields
		id                       string
		album, imageURL, preview sql.NullString
		createdAt                sql.NullTime
	)

	err := row.Scan(&id, &f.SpotifyID, &f.Name, &f.Artist, &album, &imageURL, &f.Popularity, &preview, &createdAt)
	if err != nil {
		return nil, err
	}

	f.Album, f.ImageURL, f.PreviewURL = album.String, imageURL.String, preview.String
	track := models.NewTrack(f)
	track.SetID(id)
	if createdAt.Valid {
		track.SetCreatedAt(createdAt.Time)
	}
	return track, nil
}
