package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultStateTTL is the freshness window for authorization state tokens.
const DefaultStateTTL = 5 * time.Minute

const defaultReplayGuardCap = 4096

// StateToken binds an authorization redirect back to the user and platform
// that initiated it. It is self-contained: verification is decode plus a
// timestamp check, no server-side record.
type StateToken struct {
	UserID   string `json:"userId"`
	Platform string `json:"platform"`
	IssuedAt int64  `json:"timestamp"`
	Nonce    string `json:"nonce"`
}

// StateTokenCodec encodes and decodes state tokens as URL-safe base64 JSON.
type StateTokenCodec struct {
	TTL time.Duration
	Now func() time.Time
}

func NewStateTokenCodec(ttl time.Duration) *StateTokenCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateTokenCodec{TTL: ttl}
}

func (c *StateTokenCodec) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *StateTokenCodec) ttl() time.Duration {
	if c == nil || c.TTL <= 0 {
		return DefaultStateTTL
	}
	return c.TTL
}

// Encode issues a fresh token for the given user and platform.
func (c *StateTokenCodec) Encode(userID, platform string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("core: state token user id is required")
	}
	platform = NormalizePlatform(platform)
	if platform == "" {
		return "", fmt.Errorf("core: state token platform is required")
	}
	nonce, err := generateStateNonce()
	if err != nil {
		return "", err
	}
	token := StateToken{
		UserID:   userID,
		Platform: platform,
		IssuedAt: c.now().UnixMilli(),
		Nonce:    nonce,
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("core: encode state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode verifies and unwraps a state token. Malformed input, missing
// fields, and tokens issued more than TTL ago are all rejected.
func (c *StateTokenCodec) Decode(raw string) (StateToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StateToken{}, fmt.Errorf("core: state token is required")
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return StateToken{}, fmt.Errorf("core: state token is malformed: %w", err)
	}
	var token StateToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return StateToken{}, fmt.Errorf("core: state token is malformed: %w", err)
	}
	token.UserID = strings.TrimSpace(token.UserID)
	token.Platform = NormalizePlatform(token.Platform)
	if token.UserID == "" || token.Platform == "" || token.IssuedAt <= 0 {
		return StateToken{}, fmt.Errorf("core: state token is malformed")
	}
	issuedAt := time.UnixMilli(token.IssuedAt).UTC()
	if c.now().Sub(issuedAt) > c.ttl() {
		return StateToken{}, fmt.Errorf("core: state token expired")
	}
	return token, nil
}

func generateStateNonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MemoryReplayGuard makes state tokens single-use within their window.
// Entries expire after the claim TTL; the map is capped so an abusive
// caller cannot grow it without bound.
type MemoryReplayGuard struct {
	mu      sync.Mutex
	cap     int
	entries map[string]time.Time
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{
		cap:     defaultReplayGuardCap,
		entries: map[string]time.Time{},
	}
}

// Claim records the nonce and reports whether this is its first use.
func (g *MemoryReplayGuard) Claim(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	if g == nil {
		return false, fmt.Errorf("core: replay guard is not configured")
	}
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return false, fmt.Errorf("core: replay nonce is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	now := time.Now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()

	for key, expiresAt := range g.entries {
		if now.After(expiresAt) {
			delete(g.entries, key)
		}
	}
	if expiresAt, seen := g.entries[nonce]; seen && now.Before(expiresAt) {
		return false, nil
	}
	if g.cap > 0 && len(g.entries) >= g.cap {
		return false, fmt.Errorf("core: replay guard is full")
	}
	g.entries[nonce] = now.Add(ttl)
	return true, nil
}
