package sound

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chime/internal/config"
	"github.com/2389/coven-chime/internal/store"
)

type fakeRecorder struct {
	mu      sync.Mutex
	uploads []Reason
	serves  []int
}

func (f *fakeRecorder) ObserveUpload(r Reason, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, r)
}

func (f *fakeRecorder) ObserveServe(status int, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serves = append(f.serves, status)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, st Store, mutate ...func(*config.SoundsConfig)) (*Service, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "user_sounds")
	cfg := config.SoundsConfig{
		StorageDir: root,
		MaxBytes:   3145728,
		AllowedExt: []string{"mp3", "ogg", "flac", "wav", "m4a", "aac", "opus"},
		AllowedMIME: []string{
			"audio/mpeg", "audio/ogg", "audio/wav",
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewService(cfg, st, testLogger()), root
}

func bytesUpload(name string, data []byte, mime string) *Upload {
	return &Upload{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: mime,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// pcmWAV builds a mono 16-bit PCM wav of the given number of samples.
func pcmWAV(sampleRate, samples int) []byte {
	var buf bytes.Buffer
	dataSize := samples * 2
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}

func TestUpload_StoresUnderUserDirectory(t *testing.T) {
	st := store.NewMockStore()
	svc, root := newTestService(t, st)
	ctx := context.Background()

	data := bytes.Repeat([]byte{0x52}, 4*1024)
	res := svc.Upload(ctx, 42, bytesUpload("mychime.WAV", data, "audio/wav"))

	require.True(t, res.OK(), "reason = %q, err = %v", res.Reason, res.Err)
	assert.Equal(t, "42/mychime.WAV", res.RelPath)
	assert.Equal(t, int64(4096), res.Size)
	assert.NotEmpty(t, res.Version)

	stored, err := os.ReadFile(filepath.Join(root, "42", "mychime.WAV"))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	prefs, err := st.GetPrefs(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "42/mychime.WAV", prefs[store.PrefChimeFile])
	assert.Equal(t, res.Version, prefs[store.PrefChimeVersion])

	info, err := os.Stat(filepath.Join(root, "42"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0750), info.Mode().Perm())
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	st := store.NewMockStore()
	svc, root := newTestService(t, st)

	data := make([]byte, 5*1024*1024)
	res := svc.Upload(context.Background(), 42, bytesUpload("big.mp3", data, "audio/mpeg"))

	assert.Equal(t, ReasonSize, res.Reason)
	assert.NoFileExists(t, filepath.Join(root, "42", "big.mp3"))

	prefs, _ := st.GetPrefs(context.Background(), 42)
	assert.Empty(t, prefs)
}

func TestUpload_SizeCeilingForAnyAllowedExtension(t *testing.T) {
	svc, _ := newTestService(t, store.NewMockStore(), func(c *config.SoundsConfig) {
		c.MaxBytes = 1000
	})

	for _, ext := range svc.AllowedExt() {
		for _, size := range []int{1001, 2000, 65536} {
			res := svc.Upload(context.Background(), 1, bytesUpload("x."+ext, make([]byte, size), "audio/mpeg"))
			assert.Equal(t, ReasonSize, res.Reason, "ext=%s size=%d", ext, size)
		}
	}

	res := svc.Upload(context.Background(), 1, bytesUpload("edge.ogg", make([]byte, 1000), "audio/ogg"))
	assert.True(t, res.OK(), "a file of exactly max_bytes is accepted")
}

func TestUpload_DisallowedExtensionIgnoresMIME(t *testing.T) {
	svc, root := newTestService(t, store.NewMockStore())

	names := []string{"evil.php", "song.MP4", "chime", "archive.tar.gz", "noise.wave", "x.mp3.exe"}
	mimes := []string{"audio/mpeg", "audio/wav", "application/octet-stream", ""}

	for _, name := range names {
		for _, mime := range mimes {
			res := svc.Upload(context.Background(), 7, bytesUpload(name, []byte("data"), mime))
			assert.Equal(t, ReasonExt, res.Reason, "name=%s mime=%s", name, mime)
		}
	}
	assert.NoDirExists(t, filepath.Join(root, "7"))
}

func TestUpload_UnlistedMIMEIsNotARejection(t *testing.T) {
	svc, _ := newTestService(t, store.NewMockStore())

	res := svc.Upload(context.Background(), 3, bytesUpload("tone.flac", []byte("fLaC"), "application/x-whatever"))
	assert.True(t, res.OK())
}

func TestUpload_NoFileAndTransportErrors(t *testing.T) {
	svc, _ := newTestService(t, store.NewMockStore())
	ctx := context.Background()

	assert.Equal(t, ReasonNoFile, svc.Upload(ctx, 1, nil).Reason)
	assert.Equal(t, ReasonNoFile, svc.Upload(ctx, 1, &Upload{}).Reason)
	assert.Equal(t, ReasonNoFile, svc.Upload(ctx, 1, bytesUpload("empty.mp3", nil, "audio/mpeg")).Reason)

	broken := bytesUpload("a.mp3", []byte("abc"), "audio/mpeg")
	broken.Err = errors.New("unexpected EOF")
	assert.Equal(t, ReasonUpload, svc.Upload(ctx, 1, broken).Reason)
}

func TestUpload_ContentLargerThanDeclared(t *testing.T) {
	svc, root := newTestService(t, store.NewMockStore())

	up := bytesUpload("liar.mp3", make([]byte, 500), "audio/mpeg")
	up.Size = 10

	res := svc.Upload(context.Background(), 5, up)
	assert.Equal(t, ReasonSize, res.Reason)

	entries, err := os.ReadDir(filepath.Join(root, "5"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file is removed")
}

func TestUpload_FilesystemFailureIsMove(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	svc, _ := newTestService(t, store.NewMockStore(), func(c *config.SoundsConfig) {
		c.StorageDir = blocker
	})

	res := svc.Upload(context.Background(), 1, bytesUpload("a.mp3", []byte("abc"), "audio/mpeg"))
	assert.Equal(t, ReasonMove, res.Reason)
	assert.Error(t, res.Err)
}

func TestUpload_PreferenceFailureIsMove(t *testing.T) {
	st := store.NewMockStore()
	st.SavePrefsErr = errors.New("database is locked")
	svc, _ := newTestService(t, st)

	res := svc.Upload(context.Background(), 1, bytesUpload("a.mp3", []byte("abc"), "audio/mpeg"))
	assert.Equal(t, ReasonMove, res.Reason)
}

func TestUpload_HistoryFailureIsIgnored(t *testing.T) {
	st := store.NewMockStore()
	st.RecordSoundErr = errors.New("disk full")
	svc, _ := newTestService(t, st)

	res := svc.Upload(context.Background(), 1, bytesUpload("a.mp3", []byte("abc"), "audio/mpeg"))
	assert.True(t, res.OK())
}

func TestUpload_ReuploadOverwritesPreference(t *testing.T) {
	st := store.NewMockStore()
	svc, root := newTestService(t, st)
	ctx := context.Background()

	first := svc.Upload(ctx, 9, bytesUpload("first.mp3", []byte("one"), "audio/mpeg"))
	second := svc.Upload(ctx, 9, bytesUpload("second ding!.ogg", []byte("two"), "audio/ogg"))
	require.True(t, first.OK())
	require.True(t, second.OK())

	assert.Equal(t, "9/second_ding_.ogg", second.RelPath)
	assert.NotEqual(t, first.Version, second.Version)

	rel, version, err := svc.Current(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "9/second_ding_.ogg", rel)
	assert.Equal(t, second.Version, version)

	// the previous file is orphaned, not deleted
	assert.FileExists(t, filepath.Join(root, "9", "first.mp3"))

	history, err := svc.History(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "9/second_ding_.ogg", history[0].RelPath)
}

func TestUpload_ProbesDuration(t *testing.T) {
	st := store.NewMockStore()
	svc, _ := newTestService(t, st)

	res := svc.Upload(context.Background(), 2, bytesUpload("beep.wav", pcmWAV(8000, 4000), "audio/wav"))
	require.True(t, res.OK(), "reason = %q, err = %v", res.Reason, res.Err)

	history, err := st.ListSounds(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(500), history[0].DurationMS)
	assert.Equal(t, "audio/wav", history[0].ContentType)
}

func TestUpload_RecordsOutcomes(t *testing.T) {
	rec := &fakeRecorder{}
	root := t.TempDir()
	svc := NewService(config.SoundsConfig{StorageDir: root, MaxBytes: 10, AllowedExt: []string{"mp3"}},
		store.NewMockStore(), testLogger(), WithRecorder(rec), WithProbe(nil))

	svc.Upload(context.Background(), 1, bytesUpload("a.mp3", []byte("abc"), ""))
	svc.Upload(context.Background(), 1, bytesUpload("a.exe", []byte("abc"), ""))
	svc.Upload(context.Background(), 1, bytesUpload("a.mp3", make([]byte, 11), ""))

	assert.Equal(t, []Reason{ReasonNone, ReasonExt, ReasonSize}, rec.uploads)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mychime.WAV", "mychime.WAV"},
		{"my chime (1).mp3", "my_chime_1_.mp3"},
		{"../../etc/passwd.mp3", "passwd.mp3"},
		{`C:\Users\me\Music\ding.ogg`, "ding.ogg"},
		{"ünïcödé.flac", "_n_c_d_.flac"},
		{"a--b__c..d.opus", "a--b__c..d.opus"},
		{"..", "sound"},
		{"", "sound"},
	}

	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentType("42/a.MP3"))
	assert.Equal(t, "audio/ogg", ContentType("42/a.opus"))
	assert.Equal(t, "audio/mp4", ContentType("42/a.m4a"))
	assert.Equal(t, "application/octet-stream", ContentType("42/a.bin"))
}

func TestReasonStatus(t *testing.T) {
	want := map[Reason]int{
		ReasonNoFile:    400,
		ReasonUpload:    400,
		ReasonExt:       415,
		ReasonSize:      413,
		ReasonMove:      500,
		ReasonCSRF:      403,
		ReasonForbidden: 403,
		ReasonNotFound:  404,
	}
	for _, r := range Reasons {
		assert.Equal(t, want[r], r.Status(), "reason %s", r)
		assert.True(t, strings.HasPrefix(r.MessageKey(), "chime.err."))
	}
}

func TestProbe_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC"), 0600))

	_, err := Probe(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestProbe_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one-second.wav")
	require.NoError(t, os.WriteFile(path, pcmWAV(22050, 22050), 0600))

	d, err := Probe(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStoreWithLogger(filepath.Join(t.TempDir(), "chime.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestUpload_ConcurrentUsersSQLite(t *testing.T) {
	st := newSQLiteStore(t)
	svc, _ := newTestService(t, st)
	ctx := context.Background()

	const users = 8
	ids := make([]int64, users)
	for i := range ids {
		u := &store.User{Username: fmt.Sprintf("user%d", i), PasswordHash: "x"}
		require.NoError(t, st.CreateUser(ctx, u))
		ids[i] = u.ID
	}

	results := make([]Result, users)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			results[i] = svc.Upload(ctx, id, bytesUpload("ding.wav", pcmWAV(8000, 800), "audio/wav"))
		}(i, id)
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.OK(), "user %d: reason = %q, err = %v", ids[i], res.Reason, res.Err)

		prefs, err := st.GetPrefs(ctx, ids[i])
		require.NoError(t, err)
		assert.Equal(t, res.RelPath, prefs[store.PrefChimeFile])
		assert.Equal(t, res.Version, prefs[store.PrefChimeVersion])
	}
}

func TestUpload_ConcurrentSameUserLastWriterWins(t *testing.T) {
	st := newSQLiteStore(t)
	svc, root := newTestService(t, st)
	ctx := context.Background()

	u := &store.User{Username: "racer", PasswordHash: "x"}
	require.NoError(t, st.CreateUser(ctx, u))

	const uploads = 10
	results := make([]Result, uploads)
	var wg sync.WaitGroup
	for i := range uploads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("chime-%d.wav", i)
			results[i] = svc.Upload(ctx, u.ID, bytesUpload(name, pcmWAV(8000, 800), "audio/wav"))
		}(i)
	}
	wg.Wait()

	versions := make(map[string]string, uploads)
	for _, res := range results {
		require.True(t, res.OK(), "reason = %q, err = %v", res.Reason, res.Err)
		versions[res.RelPath] = res.Version
	}

	// file and version are written together, so they always name the same upload
	prefs, err := st.GetPrefs(ctx, u.ID)
	require.NoError(t, err)
	want, ok := versions[prefs[store.PrefChimeFile]]
	require.True(t, ok, "chime_file %q is not one of the uploads", prefs[store.PrefChimeFile])
	assert.Equal(t, want, prefs[store.PrefChimeVersion])

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(prefs[store.PrefChimeFile])))
	assert.NoError(t, err)
}
