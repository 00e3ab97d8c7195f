// ABOUTME: bcrypt password hashing and constant-time login verification
// ABOUTME: Unknown users still pay for one bcrypt comparison

package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/coven-chime/internal/store"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash keeps the timing of unknown-user logins close to real ones.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// UserLookup is the part of the store needed to check passwords.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword looks up username and verifies password against its hash.
func CheckPassword(ctx context.Context, users UserLookup, username, password string) (*store.User, error) {
	user, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
