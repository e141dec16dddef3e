package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// PKCEMethodS256 is the only challenge transform the connector supports.
const PKCEMethodS256 = "S256"

// GenerateCodeVerifier returns a fresh high-entropy PKCE verifier.
func GenerateCodeVerifier() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ChallengeS256 derives the S256 code challenge for a verifier.
func ChallengeS256(verifier string) (string, error) {
	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return "", fmt.Errorf("core: code verifier is required")
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
