package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestStateTokenCodec_RoundTrip(t *testing.T) {
	codec := NewStateTokenCodec(DefaultStateTTL)

	encoded, err := codec.Encode("user-1", "LinkedIn")
	if err != nil {
		t.Fatalf("encode state token: %v", err)
	}

	token, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode state token: %v", err)
	}
	if token.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", token.UserID)
	}
	if token.Platform != "linkedin" {
		t.Fatalf("expected normalized platform linkedin, got %q", token.Platform)
	}
	if token.Nonce == "" {
		t.Fatalf("expected nonce to be set")
	}
}

func TestStateTokenCodec_WireFormat(t *testing.T) {
	codec := NewStateTokenCodec(DefaultStateTTL)

	encoded, err := codec.Encode("u1", "linkedin")
	if err != nil {
		t.Fatalf("encode state token: %v", err)
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("expected URL-safe base64, got %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(payload, &wire); err != nil {
		t.Fatalf("expected JSON payload, got %v", err)
	}
	if wire["userId"] != "u1" {
		t.Fatalf("expected userId u1, got %v", wire["userId"])
	}
	if wire["platform"] != "linkedin" {
		t.Fatalf("expected platform linkedin, got %v", wire["platform"])
	}
	if _, ok := wire["timestamp"]; !ok {
		t.Fatalf("expected timestamp field in payload")
	}
	if _, ok := wire["nonce"]; !ok {
		t.Fatalf("expected nonce field in payload")
	}
}

func TestStateTokenCodec_RejectsExpiredToken(t *testing.T) {
	issued := time.Now().UTC()
	codec := NewStateTokenCodec(5 * time.Minute)
	codec.Now = func() time.Time { return issued }

	encoded, err := codec.Encode("u1", "instagram")
	if err != nil {
		t.Fatalf("encode state token: %v", err)
	}

	codec.Now = func() time.Time { return issued.Add(6 * time.Minute) }
	if _, err := codec.Decode(encoded); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	codec.Now = func() time.Time { return issued.Add(4 * time.Minute) }
	if _, err := codec.Decode(encoded); err != nil {
		t.Fatalf("expected token within window to decode, got %v", err)
	}
}

func TestStateTokenCodec_RejectsMalformedInput(t *testing.T) {
	codec := NewStateTokenCodec(DefaultStateTTL)

	cases := []string{
		"",
		"not base64 at all!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"","platform":"x","timestamp":1,"nonce":"n"}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"u","platform":"x","timestamp":0,"nonce":"n"}`)),
	}
	for _, raw := range cases {
		if _, err := codec.Decode(raw); err == nil {
			t.Fatalf("expected decode failure for %q", raw)
		}
	}
}

func TestMemoryReplayGuard_ClaimIsSingleUse(t *testing.T) {
	guard := NewMemoryReplayGuard()

	fresh, err := guard.Claim(context.Background(), "nonce-a", time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !fresh {
		t.Fatalf("expected first claim to succeed")
	}

	fresh, err = guard.Claim(context.Background(), "nonce-a", time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if fresh {
		t.Fatalf("expected second claim to be refused")
	}

	fresh, err = guard.Claim(context.Background(), "nonce-b", time.Minute)
	if err != nil {
		t.Fatalf("unrelated claim: %v", err)
	}
	if !fresh {
		t.Fatalf("expected unrelated nonce to be accepted")
	}
}
