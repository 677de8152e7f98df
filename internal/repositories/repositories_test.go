package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func createUser(t *testing.T, repo *UserRepository, spotifyID string) *models.User {
	t.Helper()
	user := models.NewUser(0, spotifyID, spotifyID+"@example.com", "User "+spotifyID)
	if err := repo.Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func newTrack(spotifyID string) *models.Track {
	return models.NewTrack(models.TrackFields{
		SpotifyID:  spotifyID,
		Name:       "Song " + spotifyID,
		Artist:     "Artist",
		Album:      "Album",
		Popularity: 50,
	})
}

func TestUserRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		if user.ID() == "" {
			t.Error("user ID should be set after creation")
		}
		if user.Sequence() != 1 {
			t.Errorf("expected sequence 1, got %d", user.Sequence())
		}

		second := createUser(t, repo, "sp-2")
		if second.Sequence() != 2 {
			t.Errorf("expected sequence 2, got %d", second.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}

		if retrieved.SpotifyID() != "sp-1" {
			t.Errorf("expected spotify id sp-1, got %s", retrieved.SpotifyID())
		}
		if retrieved.Email() != user.Email() {
			t.Errorf("expected email %s, got %s", user.Email(), retrieved.Email())
		}
	})

	t.Run("GetBySpotifyID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		retrieved, err := repo.GetBySpotifyID("sp-1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.ID() != user.ID() {
			t.Errorf("expected ID %s, got %s", user.ID(), retrieved.ID())
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		user.SetDisplayName("Renamed")
		user.SetRefreshToken("refresh-1")
		if err := repo.Update(user); err != nil {
			t.Fatalf("failed to update user: %v", err)
		}

		retrieved, err := repo.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if retrieved.DisplayName() != "Renamed" {
			t.Errorf("expected display name Renamed, got %s", retrieved.DisplayName())
		}
		if retrieved.RefreshToken() != "refresh-1" {
			t.Errorf("expected refresh token refresh-1, got %s", retrieved.RefreshToken())
		}
	})

	t.Run("UpdateRefreshToken", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		if err := repo.UpdateRefreshToken(user.ID(), "rotated"); err != nil {
			t.Fatalf("failed to update refresh token: %v", err)
		}

		retrieved, _ := repo.Get(user.ID())
		if retrieved.RefreshToken() != "rotated" {
			t.Errorf("expected rotated, got %s", retrieved.RefreshToken())
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)

		first := models.NewUser(0, "sp-1", "a@example.com", "A")
		first.SetRefreshToken("r1")
		created, err := repo.Upsert(first)
		if err != nil {
			t.Fatalf("failed to upsert new user: %v", err)
		}
		if created.LastLogin() == nil {
			t.Error("expected last login to be set")
		}

		again := models.NewUser(0, "sp-1", "b@example.com", "B")
		updated, err := repo.Upsert(again)
		if err != nil {
			t.Fatalf("failed to upsert existing user: %v", err)
		}

		if updated.ID() != created.ID() {
			t.Errorf("expected same ID %s, got %s", created.ID(), updated.ID())
		}
		if updated.Email() != "b@example.com" {
			t.Errorf("expected email to be refreshed, got %s", updated.Email())
		}
		if updated.RefreshToken() != "r1" {
			t.Errorf("empty refresh token should keep the stored one, got %q", updated.RefreshToken())
		}

		users, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(users) != 1 {
			t.Errorf("expected 1 user, got %d", len(users))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		user := createUser(t, repo, "sp-1")

		if err := repo.Delete(user.ID()); err != nil {
			t.Fatalf("failed to delete user: %v", err)
		}

		if _, err := repo.Get(user.ID()); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound after delete, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		createUser(t, repo, "sp-1")
		createUser(t, repo, "sp-2")
		createUser(t, repo, "sp-3")

		users, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(users) != 3 {
			t.Fatalf("expected 3 users, got %d", len(users))
		}
		if users[0].SpotifyID() != "sp-1" || users[2].SpotifyID() != "sp-3" {
			t.Error("users should be ordered by sequence")
		}

		filtered, err := repo.List(map[string]any{"email": "sp-2@example.com"})
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(filtered) != 1 || filtered[0].SpotifyID() != "sp-2" {
			t.Errorf("expected only sp-2, got %d users", len(filtered))
		}
	})
}

func TestTrackRepository(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := newTrack("t1")
		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		retrieved, err := repo.Get(track.ID())
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if retrieved.Name() != "Song t1" {
			t.Errorf("expected name Song t1, got %s", retrieved.Name())
		}
	})

	t.Run("UpsertKeepsID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		first := newTrack("t1")
		if err := repo.Upsert(first); err != nil {
			t.Fatalf("failed to upsert track: %v", err)
		}

		second := models.NewTrack(models.TrackFields{SpotifyID: "t1", Name: "Song t1", Artist: "Artist", Popularity: 90})
		if err := repo.Upsert(second); err != nil {
			t.Fatalf("failed to upsert track again: %v", err)
		}

		if second.ID() != first.ID() {
			t.Errorf("expected ID %s to be reused, got %s", first.ID(), second.ID())
		}

		stored, err := repo.GetBySpotifyID("t1")
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if stored.Popularity() != 90 {
			t.Errorf("expected popularity to be refreshed to 90, got %d", stored.Popularity())
		}
	})

	t.Run("UpdateDeleteList", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		for _, id := range []string{"b", "a"} {
			if err := repo.Create(newTrack(id)); err != nil {
				t.Fatalf("failed to create track: %v", err)
			}
		}

		tracks, err := repo.List(map[string]any{"artist": "Artist"})
		if err != nil {
			t.Fatalf("failed to list tracks: %v", err)
		}
		if len(tracks) != 2 || tracks[0].SpotifyID() != "a" {
			t.Fatalf("expected 2 tracks ordered by name, got %d", len(tracks))
		}

		if err := repo.Update(tracks[0]); err != nil {
			t.Fatalf("failed to update track: %v", err)
		}

		if err := repo.Delete(tracks[0].ID()); err != nil {
			t.Fatalf("failed to delete track: %v", err)
		}
		if _, err := repo.Get(tracks[0].ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestListeningHistoryRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	users := NewUserRepository(db)
	tracks := NewTrackRepository(db)
	history := NewListeningHistoryRepository(db)

	user := createUser(t, users, "sp-1")
	early, late := newTrack("t1"), newTrack("t2")
	for _, tr := range []*models.Track{early, late} {
		if err := tracks.Upsert(tr); err != nil {
			t.Fatalf("failed to upsert track: %v", err)
		}
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Record", func(t *testing.T) {
		inserted, err := history.Record(user.ID(), early.ID(), base)
		if err != nil || !inserted {
			t.Fatalf("expected first play to be stored, got %v, %v", inserted, err)
		}

		inserted, err = history.Record(user.ID(), early.ID(), base)
		if err != nil {
			t.Fatalf("unexpected error on duplicate: %v", err)
		}
		if inserted {
			t.Error("duplicate play should be ignored")
		}

		if _, err := history.Record(user.ID(), late.ID(), base.Add(time.Hour)); err != nil {
			t.Fatalf("failed to record play: %v", err)
		}
	})

	t.Run("Recent", func(t *testing.T) {
		items, err := history.Recent(user.ID(), 10)
		if err != nil {
			t.Fatalf("failed to read history: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 plays, got %d", len(items))
		}
		if items[0].ID != "t2" {
			t.Errorf("expected newest play first, got %s", items[0].ID)
		}
		if items[1].PlayedAt != "2024-05-01T12:00:00Z" {
			t.Errorf("unexpected played_at %s", items[1].PlayedAt)
		}

		limited, _ := history.Recent(user.ID(), 1)
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d", len(limited))
		}
	})

	t.Run("Count", func(t *testing.T) {
		n, err := history.Count(user.ID())
		if err != nil {
			t.Fatalf("failed to count plays: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 plays, got %d", n)
		}
	})
}

func TestAnalysisCacheRepository(t *testing.T) {
	result := &models.AnalysisResult{
		BaseAnalysis: models.ClusterSet{
			Clusters:    []models.Cluster{{ID: 1, Name: "Cluster 1: Diverse Selection", Count: 3, Percentage: 100, TotalTracks: 3}},
			TotalTracks: 3,
		},
		PlaylistID: "p1",
	}

	t.Run("Miss", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAnalysisCacheRepository(db, time.Hour)
		if _, err := repo.Get("p1", CacheAdvanced); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("SaveAndGet", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAnalysisCacheRepository(db, time.Hour)
		if err := repo.Save("p1", CacheAdvanced, result); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		cached, err := repo.Get("p1", CacheAdvanced)
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if cached.PlaylistID != "p1" || len(cached.BaseAnalysis.Clusters) != 1 {
			t.Errorf("unexpected cached result: %+v", cached)
		}

		if _, err := repo.Get("p1", CacheKind("ml")); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("kinds should be cached separately, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAnalysisCacheRepository(db, 7*24*time.Hour)
		saved := time.Now().Add(-8 * 24 * time.Hour)
		repo.now = func() time.Time { return saved }
		if err := repo.Save("p1", CacheAdvanced, result); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		repo.now = time.Now
		if _, err := repo.Get("p1", CacheAdvanced); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected expired entry to miss, got %v", err)
		}

		n, err := repo.Purge()
		if err != nil {
			t.Fatalf("failed to purge: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged entry, got %d", n)
		}
	})
}

type tokenStore interface {
	Get(models.TokenKind) (string, bool)
	Set(models.TokenKind, string, time.Time) error
	Clear() error
}

func TestTokenStores(t *testing.T) {
	expiry := time.Unix(1700000000, 0)

	stores := map[string]func(t *testing.T) tokenStore{
		"SQLite": func(t *testing.T) tokenStore {
			db := setupTestDB(t)
			t.Cleanup(func() { db.Close() })
			return NewTokenRepository(db)
		},
		"Memory": func(t *testing.T) tokenStore {
			return NewMemoryTokenStore()
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			store := build(t)

			if _, ok := store.Get(models.SessionToken); ok {
				t.Fatal("new store should be empty")
			}

			if err := store.Set(models.SessionToken, "s1", time.Time{}); err != nil {
				t.Fatalf("failed to set session token: %v", err)
			}
			if err := store.Set(models.SessionToken, "s2", time.Time{}); err != nil {
				t.Fatalf("failed to overwrite session token: %v", err)
			}
			if v, _ := store.Get(models.SessionToken); v != "s2" {
				t.Errorf("expected s2, got %q", v)
			}

			if err := store.Set(models.AccessToken, "a1", expiry); err != nil {
				t.Fatalf("failed to set access token: %v", err)
			}
			v, ok := store.Get(models.AccessTokenExpiry)
			if !ok || v != "1700000000" {
				t.Errorf("expected expiry 1700000000, got %q", v)
			}
			parsed, ok := ParseExpiry(v)
			if !ok || !parsed.Equal(expiry) {
				t.Errorf("expected parsed expiry %v, got %v", expiry, parsed)
			}

			if err := store.Set(models.TokenKind("bogus"), "x", time.Time{}); err == nil {
				t.Error("expected error for unknown kind")
			}

			if err := store.Clear(); err != nil {
				t.Fatalf("failed to clear: %v", err)
			}
			for _, kind := range models.TokenKinds() {
				if _, ok := store.Get(kind); ok {
					t.Errorf("%s should be cleared", kind)
				}
			}
		})
	}
}
