// Package auth provides password hashing and stateless bearer tokens for
// the account endpoints.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Token verification failures. Handlers map all of these to 401.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token signature invalid")
)

// HashPassword returns the bcrypt hash of a password at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenIssuer mints and verifies HMAC-signed bearer tokens. Tokens are
// self-contained (username plus expiry, signed), so verification needs no
// database round trip.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. ttl == 0 defaults to 24 hours; a
// negative ttl is kept as-is and mints already-expired tokens.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token for username: base64(username|expiryUnix) + "." + sig.
func (t *TokenIssuer) Issue(username string) string {
	expiry := time.Now().Add(t.ttl).Unix()
	payload := fmt.Sprintf("%s|%d", username, expiry)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + t.sign(encoded)
}

// Verify checks a token's signature and expiry and returns the username.
func (t *TokenIssuer) Verify(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrTokenMalformed
	}
	if !hmac.Equal([]byte(t.sign(encoded)), []byte(sig)) {
		return "", ErrTokenInvalid
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrTokenMalformed
	}
	username, expiryStr, ok := strings.Cut(string(payload), "|")
	if !ok || username == "" {
		return "", ErrTokenMalformed
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", ErrTokenMalformed
	}
	if time.Now().Unix() > expiry {
		return "", ErrTokenExpired
	}
	return username, nil
}

func (t *TokenIssuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, t.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
