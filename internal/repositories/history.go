package repositories

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// ListeningHistoryRepository records what users played, linking users to [models.Track] rows.
type ListeningHistoryRepository struct {
	db *sql.DB
}

// NewListeningHistoryRepository creates a new ListeningHistoryRepository
func NewListeningHistoryRepository(db *sql.DB) *ListeningHistoryRepository {
	return &ListeningHistoryRepository{db: db}
}

// Record stores a play. Replaying the same (user, track, played_at) triple is a no-op
// and reports false.
func (r *ListeningHistoryRepository) Record(userID, trackID string, playedAt time.Time) (bool, error) {
	query, args, err := sqb.Insert("listening_history").
		Options("OR IGNORE").
		Columns("id", "user_id", "track_id", "played_at").
		Values(shared.GenerateID(), userID, trackID, playedAt.UTC()).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build insert: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to record play: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// Recent returns a user's most recent plays joined with their tracks, newest first.
func (r *ListeningHistoryRepository) Recent(userID string, limit int) ([]models.TrackSummary, error) {
	qb := sqb.Select("t.spotify_id", "t.name", "t.artist", "t.album", "t.image_url", "t.popularity", "h.played_at").
		From("listening_history h").
		Join("tracks t ON t.id = h.track_id").
		Where(sq.Eq{"h.user_id": userID}).
		OrderBy("h.played_at DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query listening history: %w", err)
	}
	defer rows.Close()

	items := []models.TrackSummary{}
	for rows.Next() {
		var (
			item            models.TrackSummary
			album, imageURL sql.NullString
			playedAt        time.Time
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Artist, &album, &imageURL, &item.Popularity, &playedAt); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}
		item.Album, item.ImageURL = album.String, imageURL.String
		item.PlayedAt = playedAt.UTC().Format(time.RFC3339)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// Count returns how many plays are stored for a user.
func (r *ListeningHistoryRepository) Count(userID string) (int, error) {
	query, args, err := sqb.Select("COUNT(*)").From("listening_history").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var n int
	if err := r.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return n, nil
}
