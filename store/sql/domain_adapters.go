package sqlstore

import (
	"time"

	"github.com/goliatone/go-social-connect/core"
)

// toDomain rebuilds the domain account. Token plaintext is supplied by the
// store after unsealing; the record only ever holds sealed bytes.
func (r *linkedAccountRecord) toDomain(accessToken, refreshToken string) core.LinkedAccount {
	if r == nil {
		return core.LinkedAccount{}
	}
	return core.LinkedAccount{
		ID:             r.ID,
		UserID:         r.UserID,
		Platform:       r.Platform,
		PlatformUserID: r.PlatformUserID,
		Username:       r.Username,
		DisplayName:    r.DisplayName,
		AvatarURL:      r.AvatarURL,
		ProfileURL:     r.ProfileURL,
		Bio:            r.Bio,
		Followers:      r.Followers,
		Following:      r.Following,
		EngagementRate: r.EngagementRate,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: cloneTimePointer(r.TokenExpiresAt),
		Scope:          r.Scope,
		Connected:      r.Connected,
		Verified:       r.Verified,
		SyncStatus:     core.SyncStatus(r.SyncStatus),
		ErrorCount:     r.ErrorCount,
		LastError:      r.LastError,
		LastSyncAt:     cloneTimePointer(r.LastSyncAt),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *linkedAccountRecord) applyProfile(profile core.Profile) {
	if r == nil {
		return
	}
	r.PlatformUserID = profile.PlatformUserID
	r.Username = profile.Username
	r.DisplayName = profile.DisplayName
	r.AvatarURL = profile.AvatarURL
	r.ProfileURL = profile.ProfileURL
	r.Bio = profile.Bio
	r.Followers = profile.Followers
	r.Following = profile.Following
	r.EngagementRate = profile.EngagementRate
}

func newSyncJobRecord(job core.SyncJob, now time.Time) *syncJobRecord {
	record := &syncJobRecord{
		ID:               job.ID,
		AccountID:        job.AccountID,
		JobType:          string(job.Type),
		Status:           string(job.Status),
		StartedAt:        job.StartedAt,
		CompletedAt:      cloneTimePointer(job.CompletedAt),
		RecordsProcessed: job.RecordsProcessed,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	return record
}

func (r *syncJobRecord) toDomain() core.SyncJob {
	if r == nil {
		return core.SyncJob{}
	}
	return core.SyncJob{
		ID:               r.ID,
		AccountID:        r.AccountID,
		Type:             core.SyncJobType(r.JobType),
		Status:           core.SyncJobStatus(r.Status),
		StartedAt:        r.StartedAt,
		CompletedAt:      cloneTimePointer(r.CompletedAt),
		RecordsProcessed: r.RecordsProcessed,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (r *audienceSnapshotRecord) toDomain() core.AudienceSnapshot {
	if r == nil {
		return core.AudienceSnapshot{}
	}
	return core.AudienceSnapshot{
		ID:             r.ID,
		AccountID:      r.AccountID,
		MetricDate:     r.MetricDate,
		Followers:      r.Followers,
		Following:      r.Following,
		EngagementRate: r.EngagementRate,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
