// ABOUTME: Embedded page templates and their data types
// ABOUTME: Each page is parsed once together with the shared base layout

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// translateFunc renders a localized message; templates invoke it via call.
type translateFunc func(key string, args ...any) string

// pageData carries what every page needs.
type pageData struct {
	Title      string
	Lang       string
	T          translateFunc
	BaseURL    string
	Stylesheet template.HTML
}

type loginData struct {
	pageData
	Error     string
	CSRFToken string
}

type flashView struct {
	OK      bool
	Message string
}

type historyItem struct {
	Name     string
	Size     string
	Duration string
	When     string
}

type settingsData struct {
	pageData
	Script       template.HTML
	RequestToken string
	Accept       string
	Hint         template.HTML
	CurrentName  string
	SoundURL     string
	Flash        *flashView
	History      []historyItem
}

type templates struct {
	login    *template.Template
	settings *template.Template
}

func parseTemplates() *templates {
	return &templates{
		login:    template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html")),
		settings: template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/settings.html")),
	}
}

// render executes tmpl into a buffer first so a template error never leaves
// a half-written page behind.
func (h *Handler) render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render page", "template", tmpl.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
