package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

var userColumns = []string{
	"id", "sequence", "spotify_id", "email", "display_name", "refresh_token",
	"created_at", "updated_at", "last_login", "deleted_at",
}

// UserRepository implements [models.Repository] for user [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database with generated ID and sequence
func (r *UserRepository) Create(user *models.User) error {
	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	user.SetID(shared.GenerateID())
	user.SetSequence(sequence)

	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query, args, err := sqb.Insert("users").
		Columns("id", "sequence", "spotify_id", "email", "display_name", "refresh_token", "created_at", "updated_at", "last_login").
		Values(user.ID(), sequence, user.SpotifyID(), user.Email(), user.DisplayName(), user.RefreshToken(),
			user.CreatedAt(), user.UpdatedAt(), user.LastLogin()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users
func (r *UserRepository) Get(id string) (*models.User, error) {
	user, err := r.findOne(sq.Eq{"id": id})
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrUserNotFound, id)
	}
	return user, err
}

// GetBySpotifyID retrieves a user by Spotify account id, excluding soft-deleted users
func (r *UserRepository) GetBySpotifyID(spotifyID string) (*models.User, error) {
	user, err := r.findOne(sq.Eq{"spotify_id": spotifyID})
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: spotify account %s", shared.ErrUserNotFound, spotifyID)
	}
	return user, err
}

func (r *UserRepository) findOne(where sq.Eq) (*models.User, error) {
	query, args, err := sqb.Select(userColumns...).
		From("users").
		Where(where).
		Where(sq.Eq{"deleted_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	user, err := scanUser(r.db.QueryRow(query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// Update modifies an existing user in the database
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	user.SetUpdatedAt(now)

	query, args, err := sqb.Update("users").
		Set("email", user.Email()).
		Set("display_name", user.DisplayName()).
		Set("refresh_token", user.RefreshToken()).
		Set("last_login", user.LastLogin()).
		Set("updated_at", now).
		Where(sq.Eq{"id": user.ID(), "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return affected(result, fmt.Errorf("%w: user not found or already deleted: %s", shared.ErrUserNotFound, user.ID()))
}

// UpdateRefreshToken replaces the stored Spotify refresh token for a user.
func (r *UserRepository) UpdateRefreshToken(id, refreshToken string) error {
	query, args, err := sqb.Update("users").
		Set("refresh_token", refreshToken).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}

	return affected(result, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id))
}

// Upsert creates the user on first login or refreshes the profile fields and
// refresh token of the existing account. The stored user is returned.
func (r *UserRepository) Upsert(user *models.User) (*models.User, error) {
	existing, err := r.GetBySpotifyID(user.SpotifyID())
	if err != nil {
		if !isUserNotFound(err) {
			return nil, err
		}
		user.Touch(time.Now().UTC())
		if err := r.Create(user); err != nil {
			return nil, err
		}
		return user, nil
	}

	existing.SetEmail(user.Email())
	existing.SetDisplayName(user.DisplayName())
	if user.RefreshToken() != "" {
		existing.SetRefreshToken(user.RefreshToken())
	}
	existing.Touch(time.Now().UTC())

	if err := r.Update(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(id string) error {
	query, args, err := sqb.Update("users").
		Set("deleted_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return affected(result, fmt.Errorf("%w: user not found or already deleted: %s", shared.ErrUserNotFound, id))
}

// List retrieves all users matching the given criteria, excluding soft-deleted users.
// Supported criteria keys are "email" and "spotify_id".
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	qb := sqb.Select(userColumns...).From("users").Where(sq.Eq{"deleted_at": nil})

	for _, key := range []string{"email", "spotify_id"} {
		if v, ok := criteria[key].(string); ok && v != "" {
			qb = qb.Where(sq.Eq{key: v})
		}
	}

	query, args, err := qb.OrderBy("sequence ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		id, spotifyID                    string
		sequence                         int
		email, displayName, refreshToken sql.NullString
		createdAt, updatedAt             time.Time
		lastLogin, deletedAt             sql.NullTime
	)

	err := row.Scan(&id, &sequence, &spotifyID, &email, &displayName, &refreshToken,
		&createdAt, &updatedAt, &lastLogin, &deletedAt)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(sequence, spotifyID, email.String, displayName.String)
	user.SetID(id)
	user.SetRefreshToken(refreshToken.String)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	user.SetLastLogin(nullTime(lastLogin))
	user.SetDeletedAt(nullTime(deletedAt))
	return user, nil
}

func isUserNotFound(err error) bool {
	return errors.Is(err, shared.ErrUserNotFound)
}
