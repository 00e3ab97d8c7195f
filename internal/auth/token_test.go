// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, and expired tokens

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-for-jwt-signing!")

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}
	return v
}

func TestNewJWTVerifier_ShortSecret(t *testing.T) {
	_, err := NewJWTVerifier([]byte("too-short"))
	if !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("NewJWTVerifier() error = %v, want ErrSecretTooShort", err)
	}
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate(42, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	gotID, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if gotID != 42 {
		t.Errorf("Verify() = %d, want %d", gotID, 42)
	}
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewJWTVerifier([]byte("a-completely-different-secret-32"))
				token, _ := other.Generate(42, time.Hour)
				return token
			}(),
		},
		{
			name: "non numeric subject",
			token: func() string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"sub": "alice",
					"exp": time.Now().Add(time.Hour).Unix(),
				})
				s, _ := token.SignedString(testSecret)
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t)

	token, err := verifier.Generate(7, -time.Minute)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = verifier.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier := newTestVerifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	_, err = verifier.Verify(s)
	if !errors.Is(err, ErrMissingClaim) {
		t.Errorf("Verify() error = %v, want ErrMissingClaim", err)
	}
}
