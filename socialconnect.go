package socialconnect

import "github.com/goliatone/go-social-connect/core"

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type Option = core.Option

type ConnectorService = core.ConnectorService

type ServiceDependencies = core.ServiceDependencies
type Provider = core.Provider
type Registry = core.Registry
type AccountStore = core.AccountStore
type SyncJobStore = core.SyncJobStore
type SnapshotStore = core.SnapshotStore
type SessionVerifier = core.SessionVerifier
type SecretProvider = core.SecretProvider
type ReplayGuard = core.ReplayGuard
type RefreshBackoffScheduler = core.RefreshBackoffScheduler
type RefreshRunOptions = core.RefreshRunOptions
type RefreshRunResult = core.RefreshRunResult

type InitRequest = core.InitRequest
type InitResponse = core.InitResponse
type CallbackRequest = core.CallbackRequest
type CallbackResponse = core.CallbackResponse
type RefreshRequest = core.RefreshRequest
type RefreshResponse = core.RefreshResponse
type DisconnectRequest = core.DisconnectRequest
type DisconnectResponse = core.DisconnectResponse
type SyncRequest = core.SyncRequest
type SyncResponse = core.SyncResponse
type StatusRequest = core.StatusRequest
type StatusResponse = core.StatusResponse

type LinkedAccount = core.LinkedAccount
type AccountSummary = core.AccountSummary
type Profile = core.Profile
type TokenGrant = core.TokenGrant
type SyncJob = core.SyncJob
type AudienceSnapshot = core.AudienceSnapshot

var (
	WithLogger                  = core.WithLogger
	WithLoggerProvider          = core.WithLoggerProvider
	WithMetricsRecorder         = core.WithMetricsRecorder
	WithErrorFactory            = core.WithErrorFactory
	WithErrorMapper             = core.WithErrorMapper
	WithSecretProvider          = core.WithSecretProvider
	WithPersistenceClient       = core.WithPersistenceClient
	WithRepositoryFactory       = core.WithRepositoryFactory
	WithConfigProvider          = core.WithConfigProvider
	WithOptionsResolver         = core.WithOptionsResolver
	WithRegistry                = core.WithRegistry
	WithAccountStore            = core.WithAccountStore
	WithSyncJobStore            = core.WithSyncJobStore
	WithSnapshotStore           = core.WithSnapshotStore
	WithSessionVerifier         = core.WithSessionVerifier
	WithReplayGuard             = core.WithReplayGuard
	WithRefreshBackoffScheduler = core.WithRefreshBackoffScheduler
	WithJobEnqueuer             = core.WithJobEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewConnectorService(cfg Config, opts ...Option) (*ConnectorService, error) {
	return core.NewConnectorService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*ConnectorService, error) {
	return core.Setup(cfg, opts...)
}
