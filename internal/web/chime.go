// ABOUTME: Chime settings page, upload endpoint, sound server and client env
// ABOUTME: Maps sound.Reason outcomes to JSON for scripts or flash+redirect for forms

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/2389/coven-chime/internal/assets"
	"github.com/2389/coven-chime/internal/auth"
	"github.com/2389/coven-chime/internal/chime"
	"github.com/2389/coven-chime/internal/i18n"
	"github.com/2389/coven-chime/internal/sound"
	"github.com/2389/coven-chime/internal/store"
)

const (
	// UploadField is the multipart field carrying the chime file.
	UploadField = "chime_file"
	// FlashCookieName carries the outcome of a form upload across the redirect.
	FlashCookieName = "coven_chime_flash"

	flashOK = "ok"

	// multipart overhead allowed on top of the file ceiling
	formOverhead = 64 << 10
	// parts larger than this spill to disk
	formMemory = 1 << 20

	historyLimit = 5
)

// uploadResponse is the JSON body returned to script-driven callers.
type uploadResponse struct {
	OK      bool   `json:"ok"`
	Err     string `json:"err,omitempty"`
	Message string `json:"message,omitempty"`
}

// clientEnv is published to the browser as window.chimeEnv.
type clientEnv struct {
	URL          string       `json:"url"`
	UploadURL    string       `json:"upload_url"`
	RequestToken string       `json:"request_token,omitempty"`
	Policy       chime.Policy `json:"policy"`
	Debug        bool         `json:"debug"`
}

// wantsJSON reports whether the caller is a script rather than a form post.
func wantsJSON(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// message localizes the user-facing text for a reason.
func (h *Handler) message(p *i18n.Printer, reason sound.Reason) string {
	switch reason {
	case sound.ReasonSize:
		return p.T(reason.MessageKey(), humanize.IBytes(uint64(h.sounds.MaxBytes())))
	case sound.ReasonExt:
		return p.T(reason.MessageKey(), strings.Join(h.sounds.AllowedExt(), ", "))
	default:
		return p.T(reason.MessageKey())
	}
}

// soundURL builds the cache-busted URL of a stored chime.
func (h *Handler) soundURL(rel, version string) string {
	q := url.Values{}
	q.Set("_id", rel)
	q.Set("_", version)
	return h.url(SoundPath) + "?" + q.Encode()
}

// handleSettings renders the chime settings block.
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())
	p := h.printer(w, r)

	data := settingsData{
		pageData:     h.basePage(p, "settings.title"),
		Script:       assets.ScriptTag(h.config.BaseURL, assets.ScriptFile),
		RequestToken: authCtx.RequestToken,
		Accept:       h.sounds.Accept(),
		Hint:         h.renderHint(p),
		Flash:        h.takeFlash(w, r, p),
	}

	rel, version, err := h.sounds.Current(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.Error("failed to load chime preference", "user_id", authCtx.UserID, "error", err)
	}
	if rel != "" {
		data.CurrentName = path.Base(rel)
		data.SoundURL = h.soundURL(rel, version)
	}

	records, err := h.sounds.History(r.Context(), authCtx.UserID, historyLimit)
	if err != nil {
		h.logger.Warn("failed to load upload history", "user_id", authCtx.UserID, "error", err)
	}
	data.History = historyItems(records)

	h.render(w, http.StatusOK, h.templates.settings, data)
}

// renderHint renders the markdown help text under the file input.
func (h *Handler) renderHint(p *i18n.Printer) template.HTML {
	src := p.T("settings.hint",
		strings.Join(h.sounds.AllowedExt(), ", "),
		humanize.IBytes(uint64(h.sounds.MaxBytes())))

	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(src), &buf); err != nil {
		h.logger.Warn("failed to render hint markdown", "error", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	// goldmark escapes raw HTML unless WithUnsafe is set
	return template.HTML(buf.String())
}

func historyItems(records []*store.SoundRecord) []historyItem {
	items := make([]historyItem, 0, len(records))
	for _, rec := range records {
		item := historyItem{
			Name: path.Base(rec.RelPath),
			Size: humanize.IBytes(uint64(rec.Size)),
			When: humanize.Time(rec.CreatedAt),
		}
		if rec.DurationMS > 0 {
			item.Duration = (time.Duration(rec.DurationMS) * time.Millisecond).String()
		}
		items = append(items, item)
	}
	return items
}

// setFlash stores an upload outcome for the next settings page view.
func setFlash(w http.ResponseWriter, reason sound.Reason) {
	value := string(reason)
	if reason == sound.ReasonNone {
		value = flashOK
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    value,
		Path:     SettingsPath,
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the flash cookie. Unknown values are ignored.
func (h *Handler) takeFlash(w http.ResponseWriter, r *http.Request, p *i18n.Printer) *flashView {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     SettingsPath,
		MaxAge:   -1,
		HttpOnly: true,
	})

	if cookie.Value == flashOK {
		return &flashView{OK: true, Message: p.T(sound.ReasonNone.MessageKey())}
	}
	for _, reason := range sound.Reasons {
		if string(reason) == cookie.Value {
			return &flashView{Message: h.message(p, reason)}
		}
	}
	return nil
}

// respond reports an upload outcome in the form the caller expects.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, reason sound.Reason) {
	if !wantsJSON(r) {
		setFlash(w, reason)
		http.Redirect(w, r, h.url(SettingsPath), http.StatusSeeOther)
		return
	}

	p := h.bundle.Printer(h.resolveTag(r))
	resp := uploadResponse{OK: reason == sound.ReasonNone, Message: h.message(p, reason)}
	if !resp.OK {
		resp.Err = string(reason)
	}
	writeJSON(w, reason.Status(), resp)
}

// handleUpload receives a chime upload.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.sounds.MaxBytes()+formOverhead)
	parseErr := r.ParseMultipartForm(formMemory)
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	up, reason := uploadFromRequest(r, parseErr)
	// an oversized body never reaches the form fields, so the token is
	// unavailable; nothing is stored either way
	if reason == sound.ReasonSize {
		h.respond(w, r, reason)
		return
	}

	if !auth.CheckRequestToken(authCtx, r) {
		h.logger.Warn("upload with invalid request token", "user_id", authCtx.UserID)
		h.respond(w, r, sound.ReasonCSRF)
		return
	}
	if reason != sound.ReasonNone {
		h.respond(w, r, reason)
		return
	}

	res := h.sounds.Upload(r.Context(), authCtx.UserID, up)
	if !res.OK() {
		h.logger.Info("upload rejected", "user_id", authCtx.UserID, "reason", string(res.Reason), "error", res.Err)
	}
	h.respond(w, r, res.Reason)
}

// uploadFromRequest extracts the chime file from a parsed multipart form.
// A nil Upload is the service's "no file" case.
func uploadFromRequest(r *http.Request, parseErr error) (*sound.Upload, sound.Reason) {
	if parseErr != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(parseErr, &tooLarge), strings.Contains(parseErr.Error(), "request body too large"):
			return nil, sound.ReasonSize
		case errors.Is(parseErr, http.ErrNotMultipart):
			return nil, sound.ReasonNoFile
		default:
			return &sound.Upload{
				Name: UploadField,
				Open: func() (io.ReadCloser, error) { return nil, parseErr },
				Err:  parseErr,
			}, sound.ReasonNone
		}
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File[UploadField]) == 0 {
		return nil, sound.ReasonNone
	}
	fh := r.MultipartForm.File[UploadField][0]
	if fh.Filename == "" {
		return nil, sound.ReasonNone
	}

	return &sound.Upload{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}, sound.ReasonNone
}

// handleSound serves the requested chime to its owner.
func (h *Handler) handleSound(w http.ResponseWriter, r *http.Request) {
	uid := userID(r.Context())
	rel := r.URL.Query().Get("_id")

	f, reason := h.sounds.Open(r.Context(), uid, rel)
	if reason != sound.ReasonNone {
		if reason == sound.ReasonForbidden {
			h.logger.Warn("sound request outside user directory", "user_id", uid, "rel", rel)
		}
		p := h.bundle.Printer(h.resolveTag(r))
		http.Error(w, h.message(p, reason), reason.Status())
		return
	}
	defer func() { _ = f.Close() }()

	h.sounds.ServeFile(w, r, f)
}

// handleEnv publishes window.chimeEnv for the client script.
func (h *Handler) handleEnv(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	env := clientEnv{
		UploadURL:    h.url(UploadPath),
		RequestToken: authCtx.RequestToken,
		Policy:       h.config.Policy,
		Debug:        h.sounds.Debug(),
	}
	rel, version, err := h.sounds.Current(r.Context(), authCtx.UserID)
	if err != nil {
		h.logger.Error("failed to load chime preference", "user_id", authCtx.UserID, "error", err)
	}
	if rel != "" {
		env.URL = h.soundURL(rel, version)
	}

	data, err := json.Marshal(env)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("window.chimeEnv = " + string(data) + ";\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
