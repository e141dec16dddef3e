package core

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGenerateCodeVerifier_ProducesDistinctURLSafeValues(t *testing.T) {
	first, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate verifier: %v", err)
	}
	second, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("generate verifier: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct verifiers")
	}
	if _, err := base64.RawURLEncoding.DecodeString(first); err != nil {
		t.Fatalf("expected URL-safe base64 verifier, got %v", err)
	}
}

func TestChallengeS256_MatchesSHA256Derivation(t *testing.T) {
	verifier := "test-verifier-value"
	want := base64.RawURLEncoding.EncodeToString(func() []byte {
		sum := sha256.Sum256([]byte(verifier))
		return sum[:]
	}())

	got, err := ChallengeS256(verifier)
	if err != nil {
		t.Fatalf("derive challenge: %v", err)
	}
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestChallengeS256_RequiresVerifier(t *testing.T) {
	if _, err := ChallengeS256("  "); err == nil {
		t.Fatalf("expected empty verifier to be rejected")
	}
}
