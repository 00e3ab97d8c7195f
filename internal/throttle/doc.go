// Package throttle limits repeated failures per key within a time window.
//
// The web login form keys a Limiter by username and client address. Once
// a key reaches the failure limit, further attempts are refused until the
// window that began with its first failure has passed. A successful login
// resets the key.
package throttle
