// ABOUTME: User and session store methods for SQLiteStore
// ABOUTME: Password users log in through the settings UI and own one chime each

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateUser creates a new user and sets user.ID.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (username, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?)
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	user.ID = id

	s.logger.Info("created user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var createdAtStr string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// UpdateUserPassword updates a user's password hash.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?",
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// CountUsers returns the number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, user_id, request_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.RequestToken,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "user_id", session.UserID)
	return nil
}

// GetSession retrieves a valid (non-expired) session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, request_token, created_at, expires_at
		FROM sessions
		WHERE id = ? AND expires_at > ?
	`

	var session Session
	var createdAtStr, expiresAtStr string
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx, query, id, now).Scan(
		&session.ID,
		&session.UserID,
		&session.RequestToken,
		&createdAtStr,
		&expiresAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	return &session, nil
}

// DeleteSession deletes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired sessions", "count", rowsAffected)
	}
	return nil
}
