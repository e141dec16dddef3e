package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type BeginAuthRequest struct {
	RedirectURI string
	State       string
	Scopes      []string
}

type BeginAuthResponse struct {
	URL string
	// CodeVerifier is set only by PKCE providers. The service never retains
	// it; the caller round-trips it and presents it again on callback.
	CodeVerifier string
}

type ExchangeRequest struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// Provider is one OAuth2 social platform. Adding a platform means adding a
// provider implementation plus a registry entry; the dispatcher never
// changes.
type Provider interface {
	ID() string
	Scopes() []string

	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (TokenGrant, error)
	FetchProfile(ctx context.Context, accessToken string) (Profile, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(platform string) (Provider, bool)
	List() []Provider
}

type UpsertAccountInput struct {
	UserID    string
	Platform  string
	Profile   Profile
	Grant     TokenGrant
	ExpiresAt *time.Time
	Now       time.Time
}

// AccountStore is the only writer of linked-account rows.
type AccountStore interface {
	Upsert(ctx context.Context, in UpsertAccountInput) (LinkedAccount, error)
	Get(ctx context.Context, id string) (LinkedAccount, error)
	GetByUserAndPlatform(ctx context.Context, userID, platform string) (LinkedAccount, error)
	SaveTokens(ctx context.Context, id string, grant TokenGrant, expiresAt *time.Time) error
	MarkTokenExpired(ctx context.Context, id string, cause string) error
	SaveProfile(ctx context.Context, id string, profile Profile, syncedAt time.Time) error
	Disconnect(ctx context.Context, id, userID string) error
}

type SyncJobStore interface {
	Create(ctx context.Context, job SyncJob) (SyncJob, error)
	Get(ctx context.Context, id string) (SyncJob, error)
	Complete(ctx context.Context, id string, recordsProcessed int) error
	Fail(ctx context.Context, id string, cause error) error
	ListByAccount(ctx context.Context, accountID string) ([]SyncJob, error)
}

type SnapshotStore interface {
	UpsertDaily(ctx context.Context, snapshot AudienceSnapshot) (AudienceSnapshot, error)
	ListByAccount(ctx context.Context, accountID string) ([]AudienceSnapshot, error)
}

// SessionVerifier resolves an Authorization header to a user id. Consulted
// for every action except callback, which is reachable without a session by
// design: trust there is rooted in the state token instead.
type SessionVerifier interface {
	Verify(ctx context.Context, authorization string) (string, error)
}

// ReplayGuard optionally makes state tokens single-use. Claim reports
// whether the nonce was accepted; a second claim within the TTL is refused.
type ReplayGuard interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type StoreProvider interface {
	AccountStore() AccountStore
	SyncJobStore() SyncJobStore
	SnapshotStore() SnapshotStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// JobIDAccountSync routes queued account-sync work to its worker.
const JobIDAccountSync = "socialconnect.sync.account"

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type RefreshBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}
