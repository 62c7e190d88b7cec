package types

import "time"

// User represents an account in the system.
// It carries identity, profile media references, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique, lowercase login and channel handle.
	Username string `json:"username" db:"username"`

	// Email is the user's unique, lowercase email address.
	Email string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"fullName" db:"full_name"`

	// Avatar is the public URL of the user's avatar image.
	// Every registered user has one.
	Avatar string `json:"avatar" db:"avatar"`

	// CoverImage is the public URL of the channel cover image,
	// or empty when none was uploaded.
	CoverImage string `json:"coverImage" db:"cover_image"`

	// WatchHistory lists watched video IDs in the order they were watched.
	// It is only populated by projections that load it.
	WatchHistory []int `json:"watchHistory,omitempty" db:"-"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshTokenHash is the SHA-256 digest of the single live refresh
	// token, or empty when no session is active.
	// This field is never exposed in API responses.
	RefreshTokenHash string `json:"-" db:"refresh_token_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Sanitized returns a copy of the user with credential material removed.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshTokenHash = ""
	return u
}

// NewUser holds the validated input for creating an account.
type NewUser struct {
	Username   string
	FullName   string
	Email      string
	Password   string
	Avatar     string
	CoverImage string
}
