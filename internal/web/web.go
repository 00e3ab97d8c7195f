// ABOUTME: Settings UI and chime endpoints for logged-in users
// ABOUTME: Provides login, session handling, upload, sound serving and env.js

package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"

	"github.com/2389/coven-chime/internal/assets"
	"github.com/2389/coven-chime/internal/auth"
	"github.com/2389/coven-chime/internal/chime"
	"github.com/2389/coven-chime/internal/config"
	"github.com/2389/coven-chime/internal/i18n"
	"github.com/2389/coven-chime/internal/sound"
	"github.com/2389/coven-chime/internal/store"
	"github.com/2389/coven-chime/internal/throttle"
)

const (
	// CSRFCookieName is the double-submit cookie used by the login form.
	CSRFCookieName = "coven_chime_csrf"

	// SettingsPath is the chime settings page.
	SettingsPath = "/settings/chime"
	// UploadPath receives chime uploads.
	UploadPath = "/settings/chime/upload"
	// SoundPath serves the current user's chime.
	SoundPath = "/chime/sound"
	// EnvPath publishes the client configuration.
	EnvPath = "/chime/env.js"
	// LoginPath is the password login page.
	LoginPath = "/login"
	// LogoutPath ends the session.
	LogoutPath = "/logout"
)

// Store is the persistence the web layer needs.
type Store interface {
	store.UserStore
	store.SessionStore
	store.PrefStore
	store.SoundStore
}

// Config holds web UI configuration.
type Config struct {
	// BaseURL prefixes URLs published to the browser. Empty means relative.
	BaseURL string
	// SessionDuration is how long login sessions last.
	SessionDuration time.Duration
	// Policy is the chime classification policy published to the client.
	Policy chime.Policy
	// Logins throttles failed password logins. Nil disables throttling.
	Logins *throttle.Limiter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handler serves the settings UI and chime endpoints.
type Handler struct {
	store     Store
	sounds    *sound.Service
	auth      *auth.Authenticator
	bundle    *i18n.Bundle
	markdown  goldmark.Markdown
	templates *templates
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Handler.
func New(st Store, sounds *sound.Service, authn *auth.Authenticator, bundle *i18n.Bundle, cfg Config) *Handler {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = config.DefaultSessionDuration
	}
	if cfg.Policy.Keywords == nil && cfg.Policy.AssetFolders == nil {
		cfg.Policy = chime.DefaultPolicy()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:     st,
		sounds:    sounds,
		auth:      authn,
		bundle:    bundle,
		markdown:  goldmark.New(),
		templates: parseTemplates(),
		config:    cfg,
		logger:    logger.With("component", "web"),
		now:       time.Now,
	}
}

// RegisterRoutes registers all UI and chime routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	page := auth.HTTPAuthMiddleware(h.auth, h.redirectToLogin)
	api := auth.HTTPAuthMiddleware(h.auth, nil)

	// Public routes (no auth required)
	mux.HandleFunc("GET "+LoginPath, h.handleLoginPage)
	mux.HandleFunc("POST "+LoginPath, h.handleLogin)
	mux.Handle("GET /static/", http.StripPrefix("/static", assets.FileServer()))

	// Session pages
	mux.Handle("GET /{$}", page(http.RedirectHandler(h.url(SettingsPath), http.StatusSeeOther)))
	mux.Handle("GET "+SettingsPath, page(http.HandlerFunc(h.handleSettings)))
	mux.Handle("POST "+LogoutPath, page(http.HandlerFunc(h.handleLogout)))

	// Session or bearer
	mux.Handle("POST "+UploadPath, api(http.HandlerFunc(h.handleUpload)))
	mux.Handle("GET "+SoundPath, api(http.HandlerFunc(h.handleSound)))
	mux.Handle("GET "+EnvPath, api(http.HandlerFunc(h.handleEnv)))

	h.logger.Info("web routes registered")
}

// url prefixes a route path with the configured public base URL.
func (h *Handler) url(path string) string {
	return h.config.BaseURL + path
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.url(LoginPath), http.StatusSeeOther)
}

// printer resolves the request language, persisting an explicit choice.
func (h *Handler) printer(w http.ResponseWriter, r *http.Request) *i18n.Printer {
	tag, persist := h.bundle.ResolveTag(r)
	if persist {
		i18n.SetLanguageCookie(w, tag)
	}
	return h.bundle.Printer(tag)
}

func (h *Handler) basePage(p *i18n.Printer, titleKey string) pageData {
	return pageData{
		Title:      p.T(titleKey),
		Lang:       p.Tag().String(),
		T:          p.T,
		BaseURL:    h.config.BaseURL,
		Stylesheet: assets.StylesheetTag(h.config.BaseURL, assets.StylesheetFile),
	}
}

// ensureCSRFToken returns the login CSRF token, setting the cookie if absent.
func (h *Handler) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(CSRFCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		token = "" // Will fail validation, but won't crash
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     LoginPath,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// validateCSRF checks the login form token against the cookie.
func validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	return r.PostFormValue("csrf_token") == cookie.Value
}

// createSession creates a new session for a user and sets the cookie.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	sessionID, err := generateSecureToken(32)
	if err != nil {
		return err
	}
	requestToken, err := generateSecureToken(16)
	if err != nil {
		return err
	}

	now := h.now().UTC()
	session := &store.Session{
		ID:           sessionID,
		UserID:       userID,
		RequestToken: requestToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.config.SessionDuration),
	}
	if err := h.store.CreateSession(r.Context(), session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	p := h.printer(w, r)
	h.render(w, status, h.templates.login, loginData{
		pageData:  h.basePage(p, "login.title"),
		Error:     errMsg,
		CSRFToken: h.ensureCSRFToken(w, r),
	})
}

// handleLoginPage renders the login page.
func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if authCtx, err := h.auth.Authenticate(r); err == nil && authCtx.ViaSession() {
		http.Redirect(w, r, h.url(SettingsPath), http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "")
}

// handleLogin processes the login form.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := h.bundle.Printer(h.resolveTag(r))

	if err := r.ParseForm(); err != nil || !validateCSRF(r) {
		h.renderLogin(w, r, http.StatusForbidden, p.T("chime.err.csrf"))
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		h.renderLogin(w, r, http.StatusUnauthorized, p.T("login.failed"))
		return
	}

	key := loginKey(username, r)
	if h.config.Logins != nil && !h.config.Logins.Allow(key) {
		h.logger.Warn("login throttled", "username", username, "remote", r.RemoteAddr)
		h.renderLogin(w, r, http.StatusTooManyRequests, p.T("login.throttled"))
		return
	}

	user, err := auth.CheckPassword(r.Context(), h.store, username, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("failed to check password", "error", err)
		} else if h.config.Logins != nil {
			h.config.Logins.Fail(key)
		}
		h.renderLogin(w, r, http.StatusUnauthorized, p.T("login.failed"))
		return
	}
	if h.config.Logins != nil {
		h.config.Logins.Reset(key)
	}

	if err := h.createSession(w, r, user.ID); err != nil {
		h.logger.Error("failed to create session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("login successful", "username", username, "user_id", user.ID)
	http.Redirect(w, r, h.url(SettingsPath), http.StatusSeeOther)
}

// handleLogout deletes the current session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.MustFromContext(r.Context())

	// Don't block logout if the token is invalid (security trade-off)
	if !auth.CheckRequestToken(authCtx, r) {
		h.logger.Warn("logout request with invalid request token", "user_id", authCtx.UserID)
	}

	if authCtx.SessionID != "" {
		if err := h.store.DeleteSession(r.Context(), authCtx.SessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			h.logger.Error("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, h.url(LoginPath), http.StatusSeeOther)
}

// loginKey identifies a login source for throttling.
func loginKey(username string, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return strings.ToLower(username) + "|" + host
}

func (h *Handler) resolveTag(r *http.Request) language.Tag {
	tag, _ := h.bundle.ResolveTag(r)
	return tag
}

// userID returns the authenticated user, set by the auth middleware.
func userID(ctx context.Context) int64 {
	return auth.MustFromContext(ctx).UserID
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
