// Package assets serves the embedded browser script and stylesheet.
// Each file is fingerprinted by content so pages can reference it with a
// version query and let browsers cache it indefinitely.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"html/template"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Names of the embedded entry files.
const (
	ScriptFile     = "chime.js"
	StylesheetFile = "chime.css"
)

// Prefix is the URL path the FileServer is mounted under.
const Prefix = "/static/"

// versions maps a file name under dist/ to its content fingerprint.
// NOTE: Exported through Version only. Tests that replace it must not use
// t.Parallel().
var versions map[string]string

func init() {
	// Errors are ignored: these only fail if extension format is invalid,
	// and our literals are known-good.
	_ = mime.AddExtensionType(".opus", "audio/ogg")
	_ = mime.AddExtensionType(".map", "application/json")

	versions = fingerprint(distFS, "dist")
}

// fingerprint hashes every regular file below root.
func fingerprint(fsys fs.FS, root string) map[string]string {
	out := make(map[string]string)
	_ = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil
		}
		sum := sha256.Sum256(data)
		out[strings.TrimPrefix(p, root+"/")] = hex.EncodeToString(sum[:])[:12]
		return nil
	})
	return out
}

// Files lists the embedded file names, sorted.
func Files() []string {
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version returns the content fingerprint of name, or "" if it is not embedded.
func Version(name string) string {
	return versions[name]
}

// URL returns the versioned URL of an embedded file under base, which is
// the public URL prefix without a trailing slash ("" for root-relative).
func URL(base, name string) string {
	v := Version(name)
	if v == "" {
		return base + Prefix + name
	}
	return base + Prefix + name + "?v=" + v
}

// ScriptTag returns the tag loading an embedded script. The script must run
// after env.js, so it is deferred rather than async.
func ScriptTag(base, name string) template.HTML {
	return template.HTML(`<script src="` + template.HTMLEscapeString(URL(base, name)) + `" defer></script>`)
}

// StylesheetTag returns the link tag for an embedded stylesheet.
func StylesheetTag(base, name string) template.HTML {
	return template.HTML(`<link rel="stylesheet" href="` + template.HTMLEscapeString(URL(base, name)) + `">`)
}

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// isCurrent reports whether the request asks for the current fingerprint.
func isCurrent(r *http.Request) bool {
	v := r.URL.Query().Get("v")
	return v != "" && v == Version(strings.TrimPrefix(r.URL.Path, "/"))
}

// FileServer returns an http.Handler that serves embedded assets from dist/.
// Requests carrying the current fingerprint get immutable cache headers;
// everything else gets no-cache.
// The handler expects paths relative to the dist root (strip /static/ before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		if isCurrent(r) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
