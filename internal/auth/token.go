// ABOUTME: JWT token verification for bearer access to the chime endpoints
// ABOUTME: Uses HS256 signing with configurable secret; the subject is the user ID

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum HS256 secret length accepted by NewJWTVerifier.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMissingClaim   = errors.New("missing required claim")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (userID int64, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the user ID from the "sub" claim
func (v *JWTVerifier) Verify(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return 0, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: sub is not a user id", ErrInvalidToken)
	}

	return userID, nil
}

// Generate creates a new JWT token for the given user with expiration
func (v *JWTVerifier) Generate(userID int64, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
