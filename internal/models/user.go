package models

import (
	"fmt"
	"time"
)

// User is an account created the first time someone signs in with Spotify.
//
// The Spotify refresh token is kept server side; clients only ever hold a session token.
type User struct {
	id           string
	sequence     int
	spotifyID    string
	email        string
	displayName  string
	refreshToken string
	createdAt    time.Time
	updatedAt    time.Time
	lastLogin    *time.Time
	deletedAt    *time.Time
}

// NewUser creates a user for the given Spotify account.
func NewUser(sequence int, spotifyID, email, displayName string) *User {
	now := time.Now().UTC()
	return &User{
		sequence:    sequence,
		spotifyID:   spotifyID,
		email:       email,
		displayName: displayName,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (u *User) ID() string            { return u.id }
func (u *User) Sequence() int         { return u.sequence }
func (u *User) SpotifyID() string     { return u.spotifyID }
func (u *User) Email() string         { return u.email }
func (u *User) DisplayName() string   { return u.displayName }
func (u *User) RefreshToken() string  { return u.refreshToken }
func (u *User) CreatedAt() time.Time  { return u.createdAt }
func (u *User) UpdatedAt() time.Time  { return u.updatedAt }
func (u *User) LastLogin() *time.Time { return u.lastLogin }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string)              { u.id = id }
func (u *User) SetSequence(seq int)          { u.sequence = seq }
func (u *User) SetEmail(email string)        { u.email = email }
func (u *User) SetDisplayName(name string)   { u.displayName = name }
func (u *User) SetRefreshToken(token string) { u.refreshToken = token }
func (u *User) SetCreatedAt(t time.Time)     { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)     { u.updatedAt = t }
func (u *User) SetLastLogin(t *time.Time)    { u.lastLogin = t }
func (u *User) SetDeletedAt(t *time.Time)    { u.deletedAt = t }

// Touch records a successful login at t.
func (u *User) Touch(t time.Time) {
	u.lastLogin = &t
	u.updatedAt = t
}

// Validate checks the fields required for persistence.
func (u *User) Validate() error {
	if u.spotifyID == "" {
		return fmt.Errorf("spotify id is required")
	}
	if u.id == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}
