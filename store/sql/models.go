package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type linkedAccountRecord struct {
	bun.BaseModel `bun:"table:linked_accounts,alias:la"`

	ID             string     `bun:"id,pk"`
	UserID         string     `bun:"user_id,notnull"`
	Platform       string     `bun:"platform,notnull"`
	PlatformUserID string     `bun:"platform_user_id,notnull"`
	Username       string     `bun:"username,notnull"`
	DisplayName    string     `bun:"display_name"`
	AvatarURL      string     `bun:"avatar_url"`
	ProfileURL     string     `bun:"profile_url"`
	Bio            string     `bun:"bio"`
	Followers      int64      `bun:"followers,notnull"`
	Following      int64      `bun:"following,notnull"`
	EngagementRate float64    `bun:"engagement_rate,notnull"`
	AccessToken    []byte     `bun:"access_token"`
	RefreshToken   []byte     `bun:"refresh_token"`
	TokenExpiresAt *time.Time `bun:"token_expires_at,nullzero"`
	Scope          string     `bun:"scope"`
	Connected      bool       `bun:"connected,notnull"`
	Verified       bool       `bun:"verified,notnull"`
	SyncStatus     string     `bun:"sync_status,notnull"`
	ErrorCount     int        `bun:"error_count,notnull"`
	LastError      string     `bun:"last_error"`
	LastSyncAt     *time.Time `bun:"last_sync_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncJobRecord struct {
	bun.BaseModel `bun:"table:platform_sync_jobs,alias:psj"`

	ID               string     `bun:"id,pk"`
	AccountID        string     `bun:"account_id,notnull"`
	JobType          string     `bun:"job_type,notnull"`
	Status           string     `bun:"status,notnull"`
	StartedAt        time.Time  `bun:"started_at,nullzero,notnull"`
	CompletedAt      *time.Time `bun:"completed_at,nullzero"`
	RecordsProcessed int        `bun:"records_processed,notnull"`
	ErrorMessage     string     `bun:"error_message"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type audienceSnapshotRecord struct {
	bun.BaseModel `bun:"table:platform_audience_metrics,alias:pam"`

	ID             string    `bun:"id,pk"`
	AccountID      string    `bun:"account_id,notnull"`
	MetricDate     string    `bun:"metric_date,notnull"`
	Followers      int64     `bun:"followers,notnull"`
	Following      int64     `bun:"following,notnull"`
	EngagementRate float64   `bun:"engagement_rate,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
