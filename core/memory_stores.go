package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAccountStore is the in-process AccountStore. It backs tests and
// embedded setups that run without a database.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]LinkedAccount
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: map[string]LinkedAccount{}}
}

func (s *MemoryAccountStore) Upsert(_ context.Context, in UpsertAccountInput) (LinkedAccount, error) {
	if s == nil {
		return LinkedAccount{}, fmt.Errorf("core: account store is not configured")
	}
	userID := strings.TrimSpace(in.UserID)
	platform := NormalizePlatform(in.Platform)
	if userID == "" || platform == "" {
		return LinkedAccount{}, fmt.Errorf("core: account user id and platform are required")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, found := s.findByUserAndPlatform(userID, platform)
	if !found {
		account = LinkedAccount{
			ID:        uuid.NewString(),
			UserID:    userID,
			Platform:  platform,
			CreatedAt: now,
		}
	}
	account.PlatformUserID = in.Profile.PlatformUserID
	account.Username = in.Profile.Username
	account.DisplayName = in.Profile.DisplayName
	account.AvatarURL = in.Profile.AvatarURL
	account.ProfileURL = in.Profile.ProfileURL
	account.Bio = in.Profile.Bio
	account.Followers = in.Profile.Followers
	account.Following = in.Profile.Following
	account.EngagementRate = in.Profile.EngagementRate
	account.AccessToken = in.Grant.AccessToken
	account.RefreshToken = in.Grant.RefreshToken
	account.TokenExpiresAt = cloneTime(in.ExpiresAt)
	account.Scope = in.Grant.Scope
	account.Connected = true
	account.Verified = true
	account.SyncStatus = SyncStatusConnected
	account.ErrorCount = 0
	account.LastError = ""
	account.LastSyncAt = cloneTime(&now)
	account.UpdatedAt = now

	s.accounts[account.ID] = account
	return account, nil
}

func (s *MemoryAccountStore) Get(_ context.Context, id string) (LinkedAccount, error) {
	if s == nil {
		return LinkedAccount{}, fmt.Errorf("core: account store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return LinkedAccount{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *MemoryAccountStore) GetByUserAndPlatform(_ context.Context, userID, platform string) (LinkedAccount, error) {
	if s == nil {
		return LinkedAccount{}, fmt.Errorf("core: account store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.findByUserAndPlatform(strings.TrimSpace(userID), NormalizePlatform(platform))
	if !ok {
		return LinkedAccount{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *MemoryAccountStore) SaveTokens(_ context.Context, id string, grant TokenGrant, expiresAt *time.Time) error {
	return s.update(id, func(account *LinkedAccount) {
		account.AccessToken = grant.AccessToken
		account.RefreshToken = grant.RefreshToken
		if grant.Scope != "" {
			account.Scope = grant.Scope
		}
		account.TokenExpiresAt = cloneTime(expiresAt)
		account.SyncStatus = SyncStatusConnected
		account.ErrorCount = 0
		account.LastError = ""
	})
}

func (s *MemoryAccountStore) MarkTokenExpired(_ context.Context, id string, cause string) error {
	return s.update(id, func(account *LinkedAccount) {
		account.SyncStatus = SyncStatusTokenExpired
		account.ErrorCount++
		account.LastError = strings.TrimSpace(cause)
	})
}

func (s *MemoryAccountStore) SaveProfile(_ context.Context, id string, profile Profile, syncedAt time.Time) error {
	return s.update(id, func(account *LinkedAccount) {
		account.PlatformUserID = profile.PlatformUserID
		account.Username = profile.Username
		account.DisplayName = profile.DisplayName
		account.AvatarURL = profile.AvatarURL
		account.ProfileURL = profile.ProfileURL
		account.Bio = profile.Bio
		account.Followers = profile.Followers
		account.Following = profile.Following
		account.EngagementRate = profile.EngagementRate
		account.LastSyncAt = cloneTime(&syncedAt)
	})
}

func (s *MemoryAccountStore) Disconnect(_ context.Context, id, userID string) error {
	if s == nil {
		return fmt.Errorf("core: account store is not configured")
	}
	id = strings.TrimSpace(id)
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok || account.UserID != userID {
		// Filtering on both id and owner makes a cross-user disconnect a
		// zero-row no-op rather than an error.
		return nil
	}
	account.Connected = false
	account.AccessToken = ""
	account.RefreshToken = ""
	account.TokenExpiresAt = nil
	account.SyncStatus = SyncStatusDisconnected
	account.UpdatedAt = time.Now().UTC()
	s.accounts[id] = account
	return nil
}

func (s *MemoryAccountStore) update(id string, apply func(*LinkedAccount)) error {
	if s == nil {
		return fmt.Errorf("core: account store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return ErrAccountNotFound
	}
	apply(&account)
	account.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = account
	return nil
}

func (s *MemoryAccountStore) findByUserAndPlatform(userID, platform string) (LinkedAccount, bool) {
	for _, account := range s.accounts {
		if account.UserID == userID && account.Platform == platform {
			return account, true
		}
	}
	return LinkedAccount{}, false
}

type MemorySyncJobStore struct {
	mu   sync.Mutex
	jobs map[string]SyncJob
}

func NewMemorySyncJobStore() *MemorySyncJobStore {
	return &MemorySyncJobStore{jobs: map[string]SyncJob{}}
}

func (s *MemorySyncJobStore) Create(_ context.Context, job SyncJob) (SyncJob, error) {
	if s == nil {
		return SyncJob{}, fmt.Errorf("core: sync job store is not configured")
	}
	if strings.TrimSpace(job.AccountID) == "" {
		return SyncJob{}, fmt.Errorf("core: sync job account id is required")
	}
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = SyncJobStatusPending
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

func (s *MemorySyncJobStore) Get(_ context.Context, id string) (SyncJob, error) {
	if s == nil {
		return SyncJob{}, fmt.Errorf("core: sync job store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return SyncJob{}, ErrSyncJobNotFound
	}
	return job, nil
}

func (s *MemorySyncJobStore) Complete(_ context.Context, id string, recordsProcessed int) error {
	return s.transition(id, SyncJobStatusCompleted, func(job *SyncJob) {
		job.RecordsProcessed = recordsProcessed
	})
}

func (s *MemorySyncJobStore) Fail(_ context.Context, id string, cause error) error {
	return s.transition(id, SyncJobStatusFailed, func(job *SyncJob) {
		if cause != nil {
			job.ErrorMessage = cause.Error()
		}
	})
}

func (s *MemorySyncJobStore) ListByAccount(_ context.Context, accountID string) ([]SyncJob, error) {
	if s == nil {
		return nil, fmt.Errorf("core: sync job store is not configured")
	}
	accountID = strings.TrimSpace(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]SyncJob, 0)
	for _, job := range s.jobs {
		if job.AccountID == accountID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs, nil
}

func (s *MemorySyncJobStore) transition(id string, status SyncJobStatus, apply func(*SyncJob)) error {
	if s == nil {
		return fmt.Errorf("core: sync job store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return ErrSyncJobNotFound
	}
	now := time.Now().UTC()
	if err := job.TransitionTo(status, now); err != nil {
		return err
	}
	if apply != nil {
		apply(&job)
	}
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]AudienceSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: map[string]AudienceSnapshot{}}
}

func (s *MemorySnapshotStore) UpsertDaily(_ context.Context, snapshot AudienceSnapshot) (AudienceSnapshot, error) {
	if s == nil {
		return AudienceSnapshot{}, fmt.Errorf("core: snapshot store is not configured")
	}
	accountID := strings.TrimSpace(snapshot.AccountID)
	metricDate := strings.TrimSpace(snapshot.MetricDate)
	if accountID == "" || metricDate == "" {
		return AudienceSnapshot{}, fmt.Errorf("core: snapshot account id and metric date are required")
	}
	now := time.Now().UTC()
	key := accountID + "|" + metricDate

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.snapshots[key]
	if found {
		existing.Followers = snapshot.Followers
		existing.Following = snapshot.Following
		existing.EngagementRate = snapshot.EngagementRate
		existing.UpdatedAt = now
		s.snapshots[key] = existing
		return existing, nil
	}

	snapshot.ID = uuid.NewString()
	snapshot.AccountID = accountID
	snapshot.MetricDate = metricDate
	snapshot.CreatedAt = now
	snapshot.UpdatedAt = now
	s.snapshots[key] = snapshot
	return snapshot, nil
}

func (s *MemorySnapshotStore) ListByAccount(_ context.Context, accountID string) ([]AudienceSnapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("core: snapshot store is not configured")
	}
	accountID = strings.TrimSpace(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshots := make([]AudienceSnapshot, 0)
	for _, snapshot := range s.snapshots {
		if snapshot.AccountID == accountID {
			snapshots = append(snapshots, snapshot)
		}
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].MetricDate < snapshots[j].MetricDate
	})
	return snapshots, nil
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

var (
	_ AccountStore  = (*MemoryAccountStore)(nil)
	_ SyncJobStore  = (*MemorySyncJobStore)(nil)
	_ SnapshotStore = (*MemorySnapshotStore)(nil)
)
