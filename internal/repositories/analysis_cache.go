package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// CacheKind distinguishes the analyses stored per playlist.
type CacheKind string

const CacheAdvanced CacheKind = "advanced"

// AnalysisCacheRepository stores serialized analysis results per playlist.
//
// Entries older than the TTL are treated as misses and overwritten on the next save.
type AnalysisCacheRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewAnalysisCacheRepository creates a cache whose entries expire after ttl.
func NewAnalysisCacheRepository(db *sql.DB, ttl time.Duration) *AnalysisCacheRepository {
	return &AnalysisCacheRepository{db: db, ttl: ttl, now: time.Now}
}

// Get returns the cached result for a playlist or [shared.ErrCacheMiss].
func (r *AnalysisCacheRepository) Get(playlistID string, kind CacheKind) (*models.AnalysisResult, error) {
	query, args, err := sqb.Select("payload", "created_at").
		From("analysis_cache").
		Where(sq.Eq{"playlist_id": playlistID, "kind": string(kind)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		payload   string
		createdAt time.Time
	)
	err = r.db.QueryRow(query, args...).Scan(&payload, &createdAt)
	if isNoRows(err) {
		return nil, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cache: %w", err)
	}

	if r.ttl > 0 && r.now().Sub(createdAt) > r.ttl {
		return nil, fmt.Errorf("%w: entry for %s expired", shared.ErrCacheMiss, playlistID)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached analysis: %w", err)
	}
	return &result, nil
}

// Save stores or replaces the cached result for a playlist.
func (r *AnalysisCacheRepository) Save(playlistID string, kind CacheKind, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query, args, err := sqb.Insert("analysis_cache").
		Options("OR REPLACE").
		Columns("playlist_id", "kind", "payload", "created_at").
		Values(playlistID, string(kind), string(payload), r.now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (r *AnalysisCacheRepository) Purge() (int64, error) {
	if r.ttl <= 0 {
		return 0, nil
	}

	query, args, err := sqb.Delete("analysis_cache").
		Where(sq.Lt{"created_at": r.now().UTC().Add(-r.ttl)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge analysis cache: %w", err)
	}
	return result.RowsAffected()
}
