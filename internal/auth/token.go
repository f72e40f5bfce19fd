package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	secretBytes        = 24
	minSecretLength    = 16
	tokenSeparator     = "."
	maxDisplayNameSize = 120
)

var tokenIDPattern = regexp.MustCompile(`^tk-[0-9a-z]+$`)

// NormalizeDisplayName trims a user-facing name and checks its length.
func NormalizeDisplayName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if len(name) > maxDisplayNameSize {
		return "", fmt.Errorf("name too long")
	}
	return name, nil
}

// IssueToken creates a secret for tokenID and returns the bearer value
// handed to the client together with the bcrypt hash to persist.
func IssueToken(tokenID string) (bearer, secretHash string, err error) {
	if !tokenIDPattern.MatchString(tokenID) {
		return "", "", fmt.Errorf("invalid token id")
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return tokenID + tokenSeparator + secret, string(hashed), nil
}

// ParseToken splits a bearer value into token id and secret.
func ParseToken(bearer string) (tokenID, secret string, err error) {
	bearer = strings.TrimSpace(bearer)
	tokenID, secret, ok := strings.Cut(bearer, tokenSeparator)
	if !ok || !tokenIDPattern.MatchString(tokenID) || len(secret) < minSecretLength {
		return "", "", fmt.Errorf("malformed token")
	}
	return tokenID, secret, nil
}

// VerifySecret verifies a plaintext secret against a bcrypt hash.
func VerifySecret(secretHash, candidate string) bool {
	if strings.TrimSpace(secretHash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(candidate)) == nil
}
