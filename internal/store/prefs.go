// ABOUTME: Preference bag and sound history methods for SQLiteStore
// ABOUTME: The chime_file preference points at the user's current custom sound

package store

import (
	"context"
	"fmt"
	"time"
)

// GetPrefs returns all preferences stored for a user.
func (s *SQLiteStore) GetPrefs(ctx context.Context, userID int64) (Prefs, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM user_prefs WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("querying prefs: %w", err)
	}
	defer rows.Close()

	prefs := Prefs{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning pref: %w", err)
		}
		prefs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prefs: %w", err)
	}

	return prefs, nil
}

// SavePrefs upserts the given keys in a single transaction.
func (s *SQLiteStore) SavePrefs(ctx context.Context, userID int64, prefs Prefs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range prefs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_prefs (user_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, userID, key, value, now)
		if err != nil {
			return fmt.Errorf("saving pref %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing prefs: %w", err)
	}
	return nil
}

// RecordSound appends an entry to the user's upload history.
func (s *SQLiteStore) RecordSound(ctx context.Context, rec *SoundRecord) error {
	query := `
		INSERT INTO sounds (id, user_id, rel_path, size, content_type, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.RelPath,
		rec.Size,
		rec.ContentType,
		rec.DurationMS,
		rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting sound record: %w", err)
	}
	return nil
}

// ListSounds returns the user's most recent uploads, newest first.
func (s *SQLiteStore) ListSounds(ctx context.Context, userID int64, limit int) ([]*SoundRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, rel_path, size, content_type, duration_ms, created_at
		FROM sounds
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sounds: %w", err)
	}
	defer rows.Close()

	var records []*SoundRecord
	for rows.Next() {
		var rec SoundRecord
		var createdAtStr string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RelPath, &rec.Size,
			&rec.ContentType, &rec.DurationMS, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning sound: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sounds: %w", err)
	}

	return records, nil
}
