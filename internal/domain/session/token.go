package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrTokenGeneration is returned when the system random source fails.
var ErrTokenGeneration = errors.New("session: generate token")

// TokenBytes is the amount of randomness in a session token (256 bits).
const TokenBytes = 32

// GenerateToken returns a new opaque, URL-safe session token.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken derives the store lookup key for a token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewToken generates a token together with its hash.
func NewToken() (token string, hash string, err error) {
	token, err = GenerateToken()
	if err != nil {
		return "", "", err
	}
	return token, HashToken(token), nil
}
