package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func createUser(t *testing.T, s Store, name string) *User {
	t.Helper()
	u := &User{Username: name, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

// Both implementations must agree on preference and history semantics.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestPrefs_EmptyBag(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		u := createUser(t, s, "empty")

		prefs, err := s.GetPrefs(context.Background(), u.ID)
		require.NoError(t, err)
		assert.NotNil(t, prefs)
		assert.Empty(t, prefs)
	})
}

func TestPrefs_OverwriteNotAppend(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := createUser(t, s, "overwrite")
		file1 := fmt.Sprintf("%d/first.mp3", u.ID)
		file2 := fmt.Sprintf("%d/second.ogg", u.ID)

		require.NoError(t, s.SavePrefs(ctx, u.ID, Prefs{PrefChimeFile: file1, PrefChimeVersion: "v1", "theme": "dark"}))
		require.NoError(t, s.SavePrefs(ctx, u.ID, Prefs{PrefChimeFile: file2, PrefChimeVersion: "v2"}))

		prefs, err := s.GetPrefs(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, file2, prefs[PrefChimeFile])
		assert.Equal(t, "v2", prefs[PrefChimeVersion])
		assert.Equal(t, "dark", prefs["theme"], "unrelated keys are kept")
	})
}

func TestPrefs_IsolatedPerUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := createUser(t, s, "a")
		b := createUser(t, s, "b")

		require.NoError(t, s.SavePrefs(ctx, a.ID, Prefs{PrefChimeFile: "a-file"}))

		prefs, err := s.GetPrefs(ctx, b.ID)
		require.NoError(t, err)
		assert.NotContains(t, prefs, PrefChimeFile)
	})
}

func TestSounds_NewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u := createUser(t, s, "history")
		now := time.Now().UTC().Truncate(time.Second)

		for i, id := range []string{"01A", "01B", "01C"} {
			require.NoError(t, s.RecordSound(ctx, &SoundRecord{
				ID:          id,
				UserID:      u.ID,
				RelPath:     fmt.Sprintf("%d/s%d.wav", u.ID, i),
				Size:        int64(100 * (i + 1)),
				ContentType: "audio/wav",
				CreatedAt:   now,
			}))
		}

		records, err := s.ListSounds(ctx, u.ID, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "01C", records[0].ID)
		assert.Equal(t, "01B", records[1].ID)
		assert.Equal(t, int64(300), records[0].Size)
	})
}

func TestMockStore_InjectedErrors(t *testing.T) {
	m := NewMockStore()
	boom := errors.New("boom")
	m.SavePrefsErr = boom
	m.RecordSoundErr = boom

	assert.ErrorIs(t, m.SavePrefs(context.Background(), 1, Prefs{"k": "v"}), boom)
	assert.ErrorIs(t, m.RecordSound(context.Background(), &SoundRecord{ID: "x"}), boom)
}
