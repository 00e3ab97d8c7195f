// ABOUTME: Store interface and data types for coven-chime persistence
// ABOUTME: Defines User, Session, preference bag and SoundRecord plus the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// Preference keys used by the chime feature.
const (
	PrefChimeFile    = "chime_file"    // "<user_id>/<sanitized filename>"
	PrefChimeVersion = "chime_version" // cache-busting token of the latest upload
)

// User is an account that can log in and own a custom chime.
type User struct {
	ID           int64
	Username     string
	PasswordHash string // bcrypt hash
	DisplayName  string
	CreatedAt    time.Time
}

// Session represents an authenticated browser session.
type Session struct {
	ID           string
	UserID       int64
	RequestToken string // per-session CSRF token
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Prefs is a user's preference bag.
type Prefs map[string]string

// SoundRecord is one entry in a user's upload history.
type SoundRecord struct {
	ID          string // ULID, doubles as the cache-busting version
	UserID      int64
	RelPath     string
	Size        int64
	ContentType string
	DurationMS  int64 // 0 when unknown
	CreatedAt   time.Time
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	CountUsers(ctx context.Context) (int, error)
}

// SessionStore persists browser sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// PrefStore persists per-user preference bags.
type PrefStore interface {
	// GetPrefs returns the user's preferences. A user without any
	// preferences gets an empty, non-nil bag.
	GetPrefs(ctx context.Context, userID int64) (Prefs, error)
	// SavePrefs overwrites the given keys; keys not mentioned are kept.
	SavePrefs(ctx context.Context, userID int64, prefs Prefs) error
}

// SoundStore persists upload history.
type SoundStore interface {
	RecordSound(ctx context.Context, rec *SoundRecord) error
	ListSounds(ctx context.Context, userID int64, limit int) ([]*SoundRecord, error)
}

// Store is the complete persistence interface used by coven-chime.
type Store interface {
	UserStore
	SessionStore
	PrefStore
	SoundStore

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	Close() error
}
