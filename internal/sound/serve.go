// ABOUTME: Serves stored chime files to their owner with conditional-GET caching
// ABOUTME: Weak ETags are derived from size and modification time

package sound

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CacheControl is sent with every served chime.
const CacheControl = "private, max-age=300"

// File is an opened chime ready to be served. Close it when done.
type File struct {
	RelPath     string
	Name        string // sanitized base name
	Size        int64
	ModTime     time.Time
	ContentType string
	ETag        string

	f *os.File
}

// Close releases the underlying file.
func (f *File) Close() error {
	if f == nil || f.f == nil {
		return nil
	}
	return f.f.Close()
}

// ETag returns the weak validator for a file of the given size and mtime.
func ETag(size int64, modTime time.Time) string {
	return fmt.Sprintf(`W/"%x-%x"`, size, modTime.Unix())
}

// CheckOwnership reports whether rel names a file inside the user's own
// directory. The check is purely lexical and independent of existence.
func CheckOwnership(userID int64, rel string) (string, bool) {
	prefix := strconv.FormatInt(userID, 10) + "/"
	if !strings.HasPrefix(rel, prefix) {
		return "", false
	}
	if strings.ContainsAny(rel, "\\\x00") {
		return "", false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}
	cleaned := path.Clean(rel)
	if !strings.HasPrefix(cleaned, prefix) || len(cleaned) == len(prefix) {
		return "", false
	}
	return cleaned, true
}

// Open resolves rel for the user. It returns ReasonForbidden for paths outside
// the user's directory and ReasonNotFound when no readable regular file exists.
func (s *Service) Open(ctx context.Context, userID int64, rel string) (*File, Reason) {
	cleaned, ok := CheckOwnership(userID, rel)
	if !ok {
		s.trace(ctx, "forbidden chime path", "user_id", userID, "rel", rel)
		return nil, ReasonForbidden
	}
	if s.root == "" {
		return nil, ReasonNotFound
	}

	abs := filepath.Join(s.root, filepath.FromSlash(cleaned))
	f, err := os.Open(abs)
	if err != nil {
		s.trace(ctx, "chime not found", "user_id", userID, "rel", cleaned, "error", err)
		return nil, ReasonNotFound
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		f.Close()
		return nil, ReasonNotFound
	}

	return &File{
		RelPath:     cleaned,
		Name:        SanitizeFilename(cleaned),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: ContentType(cleaned),
		ETag:        ETag(info.Size(), info.ModTime()),
		f:           f,
	}, ReasonNone
}

// NotModified reports whether the request's validators match f.
func NotModified(r *http.Request, f *File) bool {
	if inm := strings.TrimSpace(r.Header.Get("If-None-Match")); inm != "" && inm == f.ETag {
		return true
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		t, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !f.ModTime.Truncate(time.Second).After(t)
	}
	return false
}

// ServeFile writes f to w, answering 304 when the client's copy is fresh.
// HEAD requests get headers only. It returns the status sent.
func (s *Service) ServeFile(w http.ResponseWriter, r *http.Request, f *File) int {
	h := w.Header()
	h.Set("ETag", f.ETag)
	h.Set("Cache-Control", CacheControl)

	if NotModified(r, f) {
		w.WriteHeader(http.StatusNotModified)
		s.recorder.ObserveServe(http.StatusNotModified, 0)
		return http.StatusNotModified
	}

	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
	h.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.Name))
	h.Set("Last-Modified", f.ModTime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	var n int64
	if r.Method != http.MethodHead {
		var err error
		n, err = io.Copy(w, f.f)
		if err != nil {
			// client went away; headers are already out
			s.trace(r.Context(), "chime copy interrupted", "rel", f.RelPath, "error", err)
		}
	}
	s.recorder.ObserveServe(http.StatusOK, n)
	return http.StatusOK
}
