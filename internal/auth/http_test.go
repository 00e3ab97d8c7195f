// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers bearer tokens, session cookies and request token checks

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chime/internal/store"
)

func setupSession(t *testing.T) (*store.MockStore, *store.Session) {
	t.Helper()
	s := store.NewMockStore()
	session := &store.Session{
		ID:           "session-abc",
		UserID:       42,
		RequestToken: "request-token-xyz",
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return s, session
}

func captureAuth(got **AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_SessionCookie(t *testing.T) {
	s, session := setupSession(t)
	a := NewAuthenticator(s, nil)

	var got *AuthContext
	handler := HTTPAuthMiddleware(a, nil)(captureAuth(&got))

	req := httptest.NewRequest(http.MethodGet, "/chime/sound", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: session.ID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, MethodSession, got.Method)
	assert.Equal(t, "request-token-xyz", got.RequestToken)
}

func TestHTTPAuthMiddleware_BearerToken(t *testing.T) {
	verifier := newTestVerifier(t)
	a := NewAuthenticator(store.NewMockStore(), verifier)
	token, err := verifier.Generate(9, time.Hour)
	require.NoError(t, err)

	var got *AuthContext
	handler := HTTPAuthMiddleware(a, nil)(captureAuth(&got))

	req := httptest.NewRequest(http.MethodGet, "/chime/sound", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), got.UserID)
	assert.Equal(t, MethodBearer, got.Method)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	s, _ := setupSession(t)
	verifier := newTestVerifier(t)

	tests := []struct {
		name     string
		verifier TokenVerifier
		prepare  func(r *http.Request)
	}{
		{name: "no credentials", verifier: verifier, prepare: func(r *http.Request) {}},
		{name: "unknown session", verifier: verifier, prepare: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "nope"})
		}},
		{name: "bad bearer", verifier: verifier, prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer garbage")
		}},
		{name: "basic auth", verifier: verifier, prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		}},
		{name: "bearer disabled", verifier: nil, prepare: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer anything")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a *Authenticator
			if tt.verifier == nil {
				a = NewAuthenticator(s, nil)
			} else {
				a = NewAuthenticator(s, tt.verifier)
			}
			called := false
			handler := HTTPAuthMiddleware(a, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/chime/sound", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestHTTPAuthMiddleware_OnFail(t *testing.T) {
	a := NewAuthenticator(store.NewMockStore(), nil)
	handler := HTTPAuthMiddleware(a, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/chime", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestCheckRequestToken(t *testing.T) {
	session := &AuthContext{UserID: 1, Method: MethodSession, RequestToken: "secret-token"}
	bearer := &AuthContext{UserID: 1, Method: MethodBearer}

	formReq := func(token string) *http.Request {
		form := url.Values{RequestTokenField: {token}}
		r := httptest.NewRequest(http.MethodPost, "/settings/chime/upload", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r
	}
	headerReq := func(token string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/settings/chime/upload", nil)
		r.Header.Set(RequestTokenHeader, token)
		return r
	}

	assert.True(t, CheckRequestToken(session, formReq("secret-token")), "form field")
	assert.True(t, CheckRequestToken(session, headerReq("secret-token")), "header")
	assert.False(t, CheckRequestToken(session, formReq("wrong")), "wrong token")
	assert.False(t, CheckRequestToken(session, headerReq("")), "missing token")
	assert.True(t, CheckRequestToken(bearer, headerReq("")), "bearer skips check")
	assert.False(t, CheckRequestToken(nil, headerReq("secret-token")), "no auth")
}
