// Package auth provides authentication for coven-chime.
//
// # Authentication Methods
//
//   - Session cookies: created by the login form. Each session carries a
//     random request token that session-authenticated writes must echo back
//     in the _token form field or the X-Chime-Token header.
//
//   - JWT Tokens: scripts and the host application may call the sound
//     endpoints with an HS256 bearer token whose subject is the numeric user
//     ID. Bearer requests carry no ambient credentials and skip the request
//     token check. Disabled unless auth.jwt_secret is configured.
//
// # Context Propagation
//
// HTTPAuthMiddleware stores an AuthContext in the request context:
//
//	authCtx := auth.FromContext(r.Context())
//	if authCtx == nil {
//	    // not authenticated
//	}
//
// # Passwords
//
// Passwords are hashed with bcrypt. CheckPassword spends one bcrypt
// comparison even for unknown users so response timing does not reveal
// which usernames exist.
package auth
