// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Authentication methods recorded on AuthContext.
const (
	MethodSession = "session"
	MethodBearer  = "bearer"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	UserID int64
	Method string // MethodSession or MethodBearer

	// Set only for session authentication.
	SessionID    string
	RequestToken string
}

// ViaSession reports whether the caller authenticated with a session cookie.
// Such requests carry ambient credentials and need a request token check.
func (a *AuthContext) ViaSession() bool {
	return a.Method == MethodSession
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
