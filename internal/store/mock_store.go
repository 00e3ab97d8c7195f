// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	nextID   int64
	users    map[int64]*User
	sessions map[string]*Session
	prefs    map[int64]Prefs
	sounds   map[int64][]*SoundRecord

	// SavePrefsErr, when set, is returned by SavePrefs.
	SavePrefsErr error
	// RecordSoundErr, when set, is returned by RecordSound.
	RecordSoundErr error
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[int64]*User),
		sessions: make(map[string]*Session),
		prefs:    make(map[int64]Prefs),
		sounds:   make(map[int64][]*SoundRecord),
	}
}

// CreateUser stores a new user and assigns the next ID.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return ErrUsernameExists
		}
	}

	m.nextID++
	user.ID = m.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// UpdateUserPassword replaces a user's password hash.
func (m *MockStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a non-expired session.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// DeleteSession removes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (m *MockStore) DeleteExpiredSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
		}
	}
	return nil
}

// GetPrefs returns a copy of the user's preference bag.
func (m *MockStore) GetPrefs(ctx context.Context, userID int64) (Prefs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Prefs{}
	for k, v := range m.prefs[userID] {
		out[k] = v
	}
	return out, nil
}

// SavePrefs overwrites the given keys.
func (m *MockStore) SavePrefs(ctx context.Context, userID int64, prefs Prefs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SavePrefsErr != nil {
		return m.SavePrefsErr
	}

	bag, ok := m.prefs[userID]
	if !ok {
		bag = Prefs{}
		m.prefs[userID] = bag
	}
	for k, v := range prefs {
		bag[k] = v
	}
	return nil
}

// RecordSound appends to the user's upload history.
func (m *MockStore) RecordSound(ctx context.Context, rec *SoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordSoundErr != nil {
		return m.RecordSoundErr
	}

	r := *rec
	m.sounds[r.UserID] = append(m.sounds[r.UserID], &r)
	return nil
}

// ListSounds returns the user's uploads, newest first.
func (m *MockStore) ListSounds(ctx context.Context, userID int64, limit int) ([]*SoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*SoundRecord, 0, len(m.sounds[userID]))
	for _, r := range m.sounds[userID] {
		cp := *r
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
