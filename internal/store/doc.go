// Package store provides persistent storage for coven-chime using SQLite.
//
// # Architecture
//
// The Store interface is composed of small interfaces:
//
//   - UserStore: password accounts
//   - SessionStore: browser sessions carrying a per-session request token
//   - PrefStore: per-user key/value preference bags
//   - SoundStore: upload history
//
// SQLiteStore implements all of them on modernc.org/sqlite (pure Go, no cgo).
// MockStore is an in-memory implementation for handler tests, with hooks to
// inject persistence failures.
//
// # Preferences
//
// The chime feature uses two keys:
//
//   - chime_file: "<user_id>/<sanitized filename>", relative to the sound
//     storage root
//   - chime_version: cache-busting token of the latest upload
//
// SavePrefs overwrites the keys it is given; it never merges values.
//
// # Timestamps
//
// All timestamps are stored as RFC3339 strings in UTC.
package store
