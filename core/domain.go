package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAccountNotFound             = errors.New("core: linked account not found")
	ErrSyncJobNotFound             = errors.New("core: sync job not found")
	ErrInvalidSyncJobTransition    = errors.New("core: invalid sync job status transition")
	ErrInvalidSyncStatusTransition = errors.New("core: invalid sync status transition")
)

// SyncStatus tracks the health of a linked account's provider connection.
type SyncStatus string

const (
	SyncStatusConnected    SyncStatus = "connected"
	SyncStatusDisconnected SyncStatus = "disconnected"
	SyncStatusTokenExpired SyncStatus = "token_expired"
)

type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "pending"
	SyncJobStatusRunning   SyncJobStatus = "running"
	SyncJobStatusCompleted SyncJobStatus = "completed"
	SyncJobStatusFailed    SyncJobStatus = "failed"
)

type SyncJobType string

const (
	SyncJobTypeFull    SyncJobType = "full"
	SyncJobTypeMetrics SyncJobType = "metrics"
)

// Profile is the canonical shape every provider payload normalizes into.
type Profile struct {
	PlatformUserID string
	Username       string
	DisplayName    string
	AvatarURL      string
	ProfileURL     string
	Bio            string
	Followers      int64
	Following      int64
	EngagementRate float64
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.PlatformUserID) == "" {
		return fmt.Errorf("core: profile platform user id is required")
	}
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("core: profile username is required")
	}
	return nil
}

// TokenGrant is the normalized result of a token-endpoint exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// ExpiresAt resolves the absolute expiry for a grant, or nil when the
// provider issues tokens without an expiry hint.
func (g TokenGrant) ExpiresAt(now time.Time) *time.Time {
	if g.ExpiresIn <= 0 {
		return nil
	}
	expiresAt := now.UTC().Add(time.Duration(g.ExpiresIn) * time.Second)
	return &expiresAt
}

// LinkedAccount is the durable record of one user's connection to one
// provider. Uniqueness on (UserID, Platform) is enforced by the store's
// upsert-on-conflict semantics.
type LinkedAccount struct {
	ID             string
	UserID         string
	Platform       string
	PlatformUserID string
	Username       string
	DisplayName    string
	AvatarURL      string
	ProfileURL     string
	Bio            string
	Followers      int64
	Following      int64
	EngagementRate float64
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Scope          string
	Connected      bool
	Verified       bool
	SyncStatus     SyncStatus
	ErrorCount     int
	LastError      string
	LastSyncAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Summary trims an account down to the fields callers see in responses.
// Token material never leaves the service through this shape.
func (a LinkedAccount) Summary() AccountSummary {
	return AccountSummary{
		ID:          a.ID,
		Platform:    a.Platform,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		AvatarURL:   a.AvatarURL,
		Followers:   a.Followers,
	}
}

type AccountSummary struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Followers   int64  `json:"followers"`
}

// SyncJob is one attempt to refresh a linked account's data, append-only.
type SyncJob struct {
	ID               string
	AccountID        string
	Type             SyncJobType
	Status           SyncJobStatus
	StartedAt        time.Time
	CompletedAt      *time.Time
	RecordsProcessed int
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (j *SyncJob) TransitionTo(status SyncJobStatus, now time.Time) error {
	if j == nil {
		return nil
	}
	if j.Status == status {
		j.UpdatedAt = now
		return nil
	}
	if !syncJobTransitionAllowed(j.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSyncJobTransition, j.Status, status)
	}
	j.Status = status
	j.UpdatedAt = now
	if status == SyncJobStatusCompleted || status == SyncJobStatusFailed {
		completed := now
		j.CompletedAt = &completed
	}
	return nil
}

func syncJobTransitionAllowed(current, next SyncJobStatus) bool {
	allowed := map[SyncJobStatus]map[SyncJobStatus]struct{}{
		SyncJobStatusPending: {
			SyncJobStatusRunning:   {},
			SyncJobStatusCompleted: {},
			SyncJobStatusFailed:    {},
		},
		SyncJobStatusRunning: {
			SyncJobStatusCompleted: {},
			SyncJobStatusFailed:    {},
		},
		SyncJobStatusCompleted: {},
		SyncJobStatusFailed:    {},
	}
	_, ok := allowed[current][next]
	return ok
}

// AudienceSnapshot is a point-in-time follower snapshot, one row per
// (account, calendar day).
type AudienceSnapshot struct {
	ID             string
	AccountID      string
	MetricDate     string
	Followers      int64
	Following      int64
	EngagementRate float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MetricDateFor formats the calendar-day key used by snapshot uniqueness.
func MetricDateFor(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func NormalizePlatform(platform string) string {
	return strings.TrimSpace(strings.ToLower(platform))
}
