// ABOUTME: HTTP middleware accepting either a bearer JWT or a session cookie
// ABOUTME: Adds AuthContext to the request context and checks per-session request tokens

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/2389/coven-chime/internal/store"
)

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "coven_chime_session"

// Request token transport for session-authenticated writes.
const (
	RequestTokenField  = "_token"
	RequestTokenHeader = "X-Chime-Token"
)

// ErrNotAuthenticated is returned when a request carries no usable credentials.
var ErrNotAuthenticated = errors.New("not authenticated")

// SessionLookup is the part of the store needed to resolve session cookies.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
}

// Authenticator resolves the caller of an HTTP request.
type Authenticator struct {
	sessions SessionLookup
	verifier TokenVerifier // nil disables bearer tokens
}

// NewAuthenticator creates an Authenticator. verifier may be nil.
func NewAuthenticator(sessions SessionLookup, verifier TokenVerifier) *Authenticator {
	return &Authenticator{sessions: sessions, verifier: verifier}
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Authenticate resolves the request's identity. An Authorization header, when
// present, must hold a valid bearer token; otherwise the session cookie is used.
func (a *Authenticator) Authenticate(r *http.Request) (*AuthContext, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if a.verifier == nil {
			return nil, ErrNotAuthenticated
		}
		token, errMsg := extractBearerToken(header)
		if errMsg != "" {
			return nil, errors.New(errMsg)
		}
		userID, err := a.verifier.Verify(token)
		if err != nil {
			return nil, err
		}
		return &AuthContext{UserID: userID, Method: MethodBearer}, nil
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNotAuthenticated
	}

	session, err := a.sessions.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	return &AuthContext{
		UserID:       session.UserID,
		Method:       MethodSession,
		SessionID:    session.ID,
		RequestToken: session.RequestToken,
	}, nil
}

// HTTPAuthMiddleware creates an HTTP middleware that requires an authenticated
// caller. Unauthenticated requests are passed to onFail, or answered with a
// JSON 401 when onFail is nil.
func HTTPAuthMiddleware(a *Authenticator, onFail http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := a.Authenticate(r)
			if err != nil {
				if onFail != nil {
					onFail(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// PresentedRequestToken returns the request token sent with r, taken from the
// POST field or, failing that, the custom header.
func PresentedRequestToken(r *http.Request) string {
	if token := r.PostFormValue(RequestTokenField); token != "" {
		return token
	}
	return r.Header.Get(RequestTokenHeader)
}

// CheckRequestToken reports whether r carries the caller's request token.
// Bearer-authenticated requests have no ambient credentials and always pass.
func CheckRequestToken(authCtx *AuthContext, r *http.Request) bool {
	if authCtx == nil {
		return false
	}
	if !authCtx.ViaSession() {
		return true
	}
	presented := PresentedRequestToken(r)
	if presented == "" || authCtx.RequestToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(authCtx.RequestToken)) == 1
}
