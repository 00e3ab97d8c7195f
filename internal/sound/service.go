// ABOUTME: Per-user chime upload validation and storage
// ABOUTME: Files live under <root>/<user_id>/ and the chime_file preference points at the current one

package sound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389/coven-chime/internal/config"
	"github.com/2389/coven-chime/internal/store"
)

// Store is the persistence the sound service needs.
type Store interface {
	store.PrefStore
	store.SoundStore
}

// Recorder receives upload and serve outcomes, typically for metrics.
type Recorder interface {
	ObserveUpload(reason Reason, bytes int64)
	ObserveServe(status int, bytes int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpload(Reason, int64) {}
func (nopRecorder) ObserveServe(int, int64)     {}

// ProbeFunc reports the playback duration of an audio file.
type ProbeFunc func(path string) (time.Duration, error)

// Upload describes one submitted file.
type Upload struct {
	Name        string // original client-side name
	Size        int64  // declared size in bytes
	ContentType string // declared MIME type, informational only
	Open        func() (io.ReadCloser, error)
	Err         error // transport error reported by the HTTP layer
}

// Result is the outcome of Service.Upload.
type Result struct {
	Reason  Reason
	RelPath string // "<user_id>/<sanitized name>" on success
	Version string // new cache-busting token on success
	Size    int64
	Err     error // underlying cause of a failure, for logging
}

// OK reports whether the upload succeeded.
func (r Result) OK() bool {
	return r.Reason == ReasonNone
}

// Service stores and serves per-user chime files.
type Service struct {
	root        string
	maxBytes    int64
	allowedExt  []string
	allowedMIME []string
	debug       bool

	store    Store
	logger   *slog.Logger
	recorder Recorder
	probe    ProbeFunc
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithProbe replaces the audio duration probe. A nil probe disables probing.
func WithProbe(p ProbeFunc) Option {
	return func(s *Service) { s.probe = p }
}

// NewService creates a Service from the sounds configuration.
func NewService(cfg config.SoundsConfig, st Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxBytes
	}
	allowedExt := cfg.AllowedExt
	if len(allowedExt) == 0 {
		allowedExt = config.DefaultAllowedExt
	}
	exts := make([]string, 0, len(allowedExt))
	for _, e := range allowedExt {
		exts = append(exts, strings.ToLower(strings.TrimPrefix(e, ".")))
	}

	s := &Service{
		root:        cfg.StorageDir,
		maxBytes:    maxBytes,
		allowedExt:  exts,
		allowedMIME: cfg.AllowedMIME,
		debug:       cfg.Debug,
		store:       st,
		logger:      logger.With("component", "sound"),
		recorder:    nopRecorder{},
		probe:       Probe,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes returns the upload size ceiling.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Debug reports whether verbose chime logging is enabled.
func (s *Service) Debug() bool { return s.debug }

// Accept returns the value for a file input's accept attribute.
func (s *Service) Accept() string {
	parts := make([]string, 0, len(s.allowedExt)+len(s.allowedMIME))
	for _, e := range s.allowedExt {
		parts = append(parts, "."+e)
	}
	parts = append(parts, s.allowedMIME...)
	return strings.Join(parts, ",")
}

// AllowedExt returns the extension allow-list.
func (s *Service) AllowedExt() []string {
	return slices.Clone(s.allowedExt)
}

// trace logs at info level when sounds.debug is set, debug level otherwise.
func (s *Service) trace(ctx context.Context, msg string, args ...any) {
	level := slog.LevelDebug
	if s.debug {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, msg, args...)
}

func (s *Service) fail(reason Reason, err error, size int64) Result {
	s.recorder.ObserveUpload(reason, size)
	return Result{Reason: reason, Err: err, Size: size}
}

// Upload validates up and stores it as the user's chime. Failures are
// reported through Result.Reason; Upload never returns an error.
func (s *Service) Upload(ctx context.Context, userID int64, up *Upload) Result {
	if up == nil || up.Open == nil || up.Name == "" {
		return s.fail(ReasonNoFile, nil, 0)
	}
	if up.Err != nil {
		s.logger.Warn("upload transport error", "user_id", userID, "error", up.Err)
		return s.fail(ReasonUpload, up.Err, up.Size)
	}
	if up.Size == 0 {
		return s.fail(ReasonNoFile, nil, 0)
	}

	ext := Ext(up.Name)
	if !slices.Contains(s.allowedExt, ext) {
		s.trace(ctx, "rejected extension", "user_id", userID, "ext", ext, "mime", up.ContentType)
		return s.fail(ReasonExt, nil, up.Size)
	}
	if up.ContentType != "" && len(s.allowedMIME) > 0 && !slices.Contains(s.allowedMIME, strings.ToLower(up.ContentType)) {
		s.logger.Debug("declared MIME type not in allow-list", "user_id", userID, "mime", up.ContentType)
	}

	if up.Size > s.maxBytes {
		s.trace(ctx, "rejected size", "user_id", userID, "size", up.Size, "max", s.maxBytes)
		return s.fail(ReasonSize, nil, up.Size)
	}

	uid := strconv.FormatInt(userID, 10)
	safe := SanitizeFilename(up.Name)
	rel := uid + "/" + safe

	written, err := s.writeFile(uid, safe, up)
	if err != nil {
		if errors.Is(err, ReasonSize) {
			return s.fail(ReasonSize, err, written)
		}
		s.logger.Error("storing chime failed", "user_id", userID, "rel", rel, "error", err)
		return s.fail(ReasonMove, err, written)
	}

	version := ulid.Make().String()
	prefs := store.Prefs{
		store.PrefChimeFile:    rel,
		store.PrefChimeVersion: version,
	}
	if err := s.store.SavePrefs(ctx, userID, prefs); err != nil {
		s.logger.Error("saving chime preference failed", "user_id", userID, "rel", rel, "error", err)
		return s.fail(ReasonMove, err, written)
	}

	s.recordHistory(ctx, userID, version, rel, written)

	s.recorder.ObserveUpload(ReasonNone, written)
	s.trace(ctx, "stored chime", "user_id", userID, "rel", rel, "size", written)
	return Result{RelPath: rel, Version: version, Size: written}
}

// writeFile copies the upload into <root>/<uid>/<safe> through a temp file
// in the same directory, so readers never see a partial file.
func (s *Service) writeFile(uid, safe string, up *Upload) (int64, error) {
	if s.root == "" {
		return 0, errors.New("sound storage directory not configured")
	}
	dir := filepath.Join(s.root, uid)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return 0, fmt.Errorf("creating user directory: %w", err)
	}

	src, err := up.Open()
	if err != nil {
		return 0, fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("removing temp upload", "path", tmpName, "error", rmErr)
		}
	}

	written, err := io.Copy(tmp, io.LimitReader(src, s.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return written, fmt.Errorf("writing temp file: %w", err)
	}
	if written > s.maxBytes || (up.Size > 0 && written > up.Size) {
		cleanup()
		return written, fmt.Errorf("upload grew to %d bytes: %w", written, ReasonSize)
	}

	if err := os.Chmod(tmpName, 0640); err != nil {
		cleanup()
		return written, fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, safe)); err != nil {
		cleanup()
		return written, fmt.Errorf("moving upload into place: %w", err)
	}
	return written, nil
}

// recordHistory probes the stored file and appends a sound record.
// Both steps are best-effort.
func (s *Service) recordHistory(ctx context.Context, userID int64, version, rel string, size int64) {
	var durationMS int64
	if s.probe != nil {
		d, err := s.probe(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil {
			s.trace(ctx, "probe skipped", "rel", rel, "error", err)
		} else {
			durationMS = d.Milliseconds()
		}
	}

	rec := &store.SoundRecord{
		ID:          version,
		UserID:      userID,
		RelPath:     rel,
		Size:        size,
		ContentType: ContentType(rel),
		DurationMS:  durationMS,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.RecordSound(ctx, rec); err != nil {
		s.logger.Warn("recording sound history failed", "user_id", userID, "error", err)
	}
}

// Current returns the user's chime path and version, or empty strings when
// the user has not uploaded one.
func (s *Service) Current(ctx context.Context, userID int64) (rel, version string, err error) {
	prefs, err := s.store.GetPrefs(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("loading prefs: %w", err)
	}
	return prefs[store.PrefChimeFile], prefs[store.PrefChimeVersion], nil
}

// History returns the user's most recent uploads.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]*store.SoundRecord, error) {
	return s.store.ListSounds(ctx, userID, limit)
}
