package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// ConnectorService owns the social-account connection lifecycle: issuing
// authorization URLs, completing the code exchange, refreshing tokens, and
// keeping linked-account health durable. It holds no per-request state.
type ConnectorService struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	registry          Registry
	accountStore      AccountStore
	syncJobStore      SyncJobStore
	snapshotStore     SnapshotStore
	sessionVerifier   SessionVerifier
	replayGuard       ReplayGuard
	refreshScheduler  RefreshBackoffScheduler
	jobEnqueuer       JobEnqueuer
	stateCodec        *StateTokenCodec
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	SecretProvider   SecretProvider
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Registry         Registry
	AccountStore     AccountStore
	SyncJobStore     SyncJobStore
	SnapshotStore    SnapshotStore
	SessionVerifier  SessionVerifier
	ReplayGuard      ReplayGuard
	RefreshScheduler RefreshBackoffScheduler
	JobEnqueuer      JobEnqueuer
}

func NewConnectorService(cfg Config, options ...Option) (*ConnectorService, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connector", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connector"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewProviderRegistry()
	}
	if builder.refreshScheduler == nil {
		builder.refreshScheduler = ExponentialBackoffScheduler{
			Initial: defaultRefreshInitialBackoff,
			Max:     defaultRefreshMaxBackoff,
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	needsStores := builder.accountStore == nil || builder.syncJobStore == nil || builder.snapshotStore == nil
	if needsStores && builder.repositoryFactory != nil {
		var storeProvider StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := factory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			storeProvider = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			storeProvider = direct
		}
		if storeProvider != nil {
			if builder.accountStore == nil {
				builder.accountStore = storeProvider.AccountStore()
			}
			if builder.syncJobStore == nil {
				builder.syncJobStore = storeProvider.SyncJobStore()
			}
			if builder.snapshotStore == nil {
				builder.snapshotStore = storeProvider.SnapshotStore()
			}
		}
	}
	if builder.accountStore == nil {
		builder.accountStore = NewMemoryAccountStore()
	}
	if builder.syncJobStore == nil {
		builder.syncJobStore = NewMemorySyncJobStore()
	}
	if builder.snapshotStore == nil {
		builder.snapshotStore = NewMemorySnapshotStore()
	}

	return &ConnectorService{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		registry:          builder.registry,
		accountStore:      builder.accountStore,
		syncJobStore:      builder.syncJobStore,
		snapshotStore:     builder.snapshotStore,
		sessionVerifier:   builder.sessionVerifier,
		replayGuard:       builder.replayGuard,
		refreshScheduler:  builder.refreshScheduler,
		jobEnqueuer:       builder.jobEnqueuer,
		stateCodec:        NewStateTokenCodec(finalConfig.StateTTL()),
	}, nil
}

func Setup(cfg Config, options ...Option) (*ConnectorService, error) {
	return NewConnectorService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *ConnectorService) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *ConnectorService) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		SecretProvider:   s.secretProvider,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		Registry:         s.registry,
		AccountStore:     s.accountStore,
		SyncJobStore:     s.syncJobStore,
		SnapshotStore:    s.snapshotStore,
		SessionVerifier:  s.sessionVerifier,
		ReplayGuard:      s.replayGuard,
		RefreshScheduler: s.refreshScheduler,
		JobEnqueuer:      s.jobEnqueuer,
	}
}

// SessionVerifier exposes the configured verifier for the inbound layer.
func (s *ConnectorService) SessionVerifier() SessionVerifier {
	if s == nil {
		return nil
	}
	return s.sessionVerifier
}

func (s *ConnectorService) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

type InitRequest struct {
	UserID      string
	Platform    string
	RedirectURI string
}

type InitResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
	// CodeVerifier is present only for PKCE platforms. The caller keeps it
	// and presents it again on callback.
	CodeVerifier string `json:"codeVerifier,omitempty"`
}

// Init issues the provider authorization URL and a fresh state token. It
// has no side effects beyond URL and token construction.
func (s *ConnectorService) Init(ctx context.Context, req InitRequest) (response InitResponse, err error) {
	startedAt := time.Now().UTC()
	platform := NormalizePlatform(req.Platform)
	fields := map[string]any{
		"platform": platform,
		"user_id":  req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "init", err, fields)
	}()

	if strings.TrimSpace(req.UserID) == "" {
		err = s.mapError(NewUnauthorizedError("A valid session is required"))
		return InitResponse{}, err
	}
	provider, lookupErr := s.resolveProvider(platform)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return InitResponse{}, err
	}

	state, encodeErr := s.stateCodec.Encode(req.UserID, platform)
	if encodeErr != nil {
		err = s.mapError(encodeErr)
		return InitResponse{}, err
	}

	begin, beginErr := provider.BeginAuth(ctx, BeginAuthRequest{
		RedirectURI: strings.TrimSpace(req.RedirectURI),
		State:       state,
		Scopes:      provider.Scopes(),
	})
	if beginErr != nil {
		err = s.mapError(beginErr)
		return InitResponse{}, err
	}

	return InitResponse{
		AuthorizationURL: begin.URL,
		State:            state,
		CodeVerifier:     begin.CodeVerifier,
	}, nil
}

type CallbackRequest struct {
	Platform     string
	Code         string
	RedirectURI  string
	State        string
	CodeVerifier string
}

type CallbackResponse struct {
	Success bool           `json:"success"`
	Account AccountSummary `json:"account"`
}

// Callback completes the authorization flow: verifies the state token,
// exchanges the code, fetches the canonical profile, and links the account.
// The account upsert, sync-job insert, and snapshot upsert are sequential
// rather than transactional; each later step is idempotent so a follow-up
// sync backfills anything a partial failure left behind.
func (s *ConnectorService) Callback(ctx context.Context, req CallbackRequest) (response CallbackResponse, err error) {
	startedAt := time.Now().UTC()
	platform := NormalizePlatform(req.Platform)
	fields := map[string]any{
		"platform": platform,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "callback", err, fields)
	}()

	token, decodeErr := s.stateCodec.Decode(req.State)
	if decodeErr != nil {
		err = s.mapError(NewStateInvalidError("Invalid state token"))
		s.logError(ctx, "state token rejected", map[string]any{
			"platform": platform,
			"cause":    decodeErr.Error(),
		})
		return CallbackResponse{}, err
	}
	if platform != "" && platform != token.Platform {
		err = s.mapError(NewStateInvalidError("Invalid state token"))
		return CallbackResponse{}, err
	}
	platform = token.Platform
	fields["platform"] = platform
	fields["user_id"] = token.UserID

	if s.replayGuard != nil {
		fresh, claimErr := s.replayGuard.Claim(ctx, token.Nonce, s.stateCodec.ttl())
		if claimErr != nil {
			err = s.mapError(claimErr)
			return CallbackResponse{}, err
		}
		if !fresh {
			err = s.mapError(NewStateInvalidError("Invalid state token"))
			return CallbackResponse{}, err
		}
	}

	provider, lookupErr := s.resolveProvider(platform)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return CallbackResponse{}, err
	}

	grant, exchangeErr := provider.ExchangeCode(ctx, ExchangeRequest{
		Code:         strings.TrimSpace(req.Code),
		RedirectURI:  strings.TrimSpace(req.RedirectURI),
		CodeVerifier: strings.TrimSpace(req.CodeVerifier),
	})
	if exchangeErr != nil {
		s.logError(ctx, "token exchange failed", map[string]any{
			"platform": platform,
			"cause":    exchangeErr.Error(),
		})
		err = s.mapError(NewTokenExchangeError(exchangeErr, "Token exchange failed"))
		return CallbackResponse{}, err
	}

	profile, profileErr := provider.FetchProfile(ctx, grant.AccessToken)
	if profileErr != nil {
		s.logError(ctx, "profile fetch failed", map[string]any{
			"platform": platform,
			"cause":    profileErr.Error(),
		})
		err = s.mapError(NewProfileFetchError(profileErr, "Profile fetch failed"))
		return CallbackResponse{}, err
	}

	now := time.Now().UTC()
	account, upsertErr := s.accountStore.Upsert(ctx, UpsertAccountInput{
		UserID:    token.UserID,
		Platform:  platform,
		Profile:   profile,
		Grant:     grant,
		ExpiresAt: grant.ExpiresAt(now),
		Now:       now,
	})
	if upsertErr != nil {
		err = s.mapError(upsertErr)
		return CallbackResponse{}, err
	}
	fields["account_id"] = account.ID

	if _, jobErr := s.syncJobStore.Create(ctx, SyncJob{
		AccountID: account.ID,
		Type:      SyncJobTypeFull,
		Status:    SyncJobStatusPending,
		StartedAt: now,
	}); jobErr != nil {
		err = s.mapError(jobErr)
		return CallbackResponse{}, err
	}
	s.enqueueSyncJob(ctx, account.ID)

	if _, snapErr := s.snapshotStore.UpsertDaily(ctx, AudienceSnapshot{
		AccountID:      account.ID,
		MetricDate:     MetricDateFor(now),
		Followers:      profile.Followers,
		Following:      profile.Following,
		EngagementRate: profile.EngagementRate,
	}); snapErr != nil {
		err = s.mapError(snapErr)
		return CallbackResponse{}, err
	}

	return CallbackResponse{Success: true, Account: account.Summary()}, nil
}

type RefreshRequest struct {
	Platform  string
	AccountID string
}

type RefreshResponse struct {
	Success        bool       `json:"success"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

// Refresh renews the stored access token. A provider-side failure is a
// durable side effect: the account is marked token_expired with the error
// recorded before the failure is returned.
func (s *ConnectorService) Refresh(ctx context.Context, req RefreshRequest) (response RefreshResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"platform":   NormalizePlatform(req.Platform),
		"account_id": req.AccountID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	account, loadErr := s.requireAccount(ctx, req.AccountID)
	if loadErr != nil {
		err = s.mapError(loadErr)
		return RefreshResponse{}, err
	}
	fields["platform"] = account.Platform

	if strings.TrimSpace(account.RefreshToken) == "" {
		err = s.mapError(NewNoRefreshTokenError("No refresh token available for this account"))
		return RefreshResponse{}, err
	}

	provider, lookupErr := s.resolveProvider(account.Platform)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return RefreshResponse{}, err
	}

	grant, refreshErr := provider.Refresh(ctx, account.RefreshToken)
	if refreshErr != nil {
		if markErr := s.accountStore.MarkTokenExpired(ctx, account.ID, refreshErr.Error()); markErr != nil {
			s.logError(ctx, "token health update failed", map[string]any{
				"account_id": account.ID,
				"cause":      markErr.Error(),
			})
		}
		err = s.mapError(NewTokenExchangeError(refreshErr, "Token refresh failed"))
		return RefreshResponse{}, err
	}

	if grant.RefreshToken == "" {
		// Providers may rotate or omit the refresh token; keep the old one
		// when the response carries none.
		grant.RefreshToken = account.RefreshToken
	}
	now := time.Now().UTC()
	expiresAt := grant.ExpiresAt(now)
	if saveErr := s.accountStore.SaveTokens(ctx, account.ID, grant, expiresAt); saveErr != nil {
		err = s.mapError(saveErr)
		return RefreshResponse{}, err
	}

	return RefreshResponse{Success: true, TokenExpiresAt: expiresAt}, nil
}

type DisconnectRequest struct {
	UserID    string
	AccountID string
}

type DisconnectResponse struct {
	Success bool `json:"success"`
}

// Disconnect clears tokens and marks the account disconnected. The update
// filters on both account id and user id, so a cross-user call touches
// zero rows. Idempotent.
func (s *ConnectorService) Disconnect(ctx context.Context, req DisconnectRequest) (response DisconnectResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": req.AccountID,
		"user_id":    req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		err = s.mapError(fmt.Errorf("core: account id is required"))
		return DisconnectResponse{}, err
	}
	if strings.TrimSpace(req.UserID) == "" {
		err = s.mapError(NewUnauthorizedError("A valid session is required"))
		return DisconnectResponse{}, err
	}

	if disconnectErr := s.accountStore.Disconnect(ctx, accountID, req.UserID); disconnectErr != nil {
		err = s.mapError(disconnectErr)
		return DisconnectResponse{}, err
	}
	return DisconnectResponse{Success: true}, nil
}

type SyncRequest struct {
	AccountID string
}

type SyncResponse struct {
	Success          bool           `json:"success"`
	RecordsProcessed int            `json:"recordsProcessed"`
	Account          AccountSummary `json:"account"`
}

// Sync refreshes the account's audience metrics on demand. A failed fetch
// marks the job failed and leaves the account row untouched; stale data is
// preferred over a partial overwrite.
func (s *ConnectorService) Sync(ctx context.Context, req SyncRequest) (response SyncResponse, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"account_id": req.AccountID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "sync", err, fields)
	}()

	account, loadErr := s.requireAccount(ctx, req.AccountID)
	if loadErr != nil {
		err = s.mapError(loadErr)
		return SyncResponse{}, err
	}
	fields["platform"] = account.Platform

	now := time.Now().UTC()
	job, jobErr := s.syncJobStore.Create(ctx, SyncJob{
		AccountID: account.ID,
		Type:      SyncJobTypeMetrics,
		Status:    SyncJobStatusRunning,
		StartedAt: now,
	})
	if jobErr != nil {
		err = s.mapError(jobErr)
		return SyncResponse{}, err
	}

	provider, lookupErr := s.resolveProvider(account.Platform)
	if lookupErr != nil {
		err = s.failSyncJob(ctx, job.ID, lookupErr)
		return SyncResponse{}, err
	}

	profile, fetchErr := provider.FetchProfile(ctx, account.AccessToken)
	if fetchErr != nil {
		err = s.failSyncJob(ctx, job.ID, NewProfileFetchError(fetchErr, "Profile fetch failed"))
		return SyncResponse{}, err
	}

	syncedAt := time.Now().UTC()
	if saveErr := s.accountStore.SaveProfile(ctx, account.ID, profile, syncedAt); saveErr != nil {
		err = s.failSyncJob(ctx, job.ID, saveErr)
		return SyncResponse{}, err
	}
	if _, snapErr := s.snapshotStore.UpsertDaily(ctx, AudienceSnapshot{
		AccountID:      account.ID,
		MetricDate:     MetricDateFor(syncedAt),
		Followers:      profile.Followers,
		Following:      profile.Following,
		EngagementRate: profile.EngagementRate,
	}); snapErr != nil {
		err = s.failSyncJob(ctx, job.ID, snapErr)
		return SyncResponse{}, err
	}

	if completeErr := s.syncJobStore.Complete(ctx, job.ID, 1); completeErr != nil {
		err = s.mapError(completeErr)
		return SyncResponse{}, err
	}

	refreshed, reloadErr := s.accountStore.Get(ctx, account.ID)
	if reloadErr != nil {
		refreshed = account
	}
	return SyncResponse{
		Success:          true,
		RecordsProcessed: 1,
		Account:          refreshed.Summary(),
	}, nil
}

type StatusRequest struct {
	UserID   string
	Platform string
}

type StatusResponse struct {
	Connected bool            `json:"connected"`
	Account   *AccountSummary `json:"account"`
}

// Status reports the connection state for a (user, platform) pair.
// Read-only.
func (s *ConnectorService) Status(ctx context.Context, req StatusRequest) (response StatusResponse, err error) {
	startedAt := time.Now().UTC()
	platform := NormalizePlatform(req.Platform)
	fields := map[string]any{
		"platform": platform,
		"user_id":  req.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "status", err, fields)
	}()

	if strings.TrimSpace(req.UserID) == "" {
		err = s.mapError(NewUnauthorizedError("A valid session is required"))
		return StatusResponse{}, err
	}
	if platform == "" {
		err = s.mapError(fmt.Errorf("core: platform is required"))
		return StatusResponse{}, err
	}

	account, loadErr := s.accountStore.GetByUserAndPlatform(ctx, req.UserID, platform)
	if loadErr != nil {
		if errors.Is(loadErr, ErrAccountNotFound) {
			return StatusResponse{Connected: false, Account: nil}, nil
		}
		err = s.mapError(loadErr)
		return StatusResponse{}, err
	}

	summary := account.Summary()
	return StatusResponse{
		Connected: account.Connected,
		Account:   &summary,
	}, nil
}

func (s *ConnectorService) resolveProvider(platform string) (Provider, error) {
	platform = NormalizePlatform(platform)
	if platform == "" {
		return nil, NewProviderUnsupportedError("Unsupported platform")
	}
	if provider, ok := s.registry.Get(platform); ok {
		return provider, nil
	}
	if IsKnownPlatform(platform) {
		return nil, NewNotImplementedError(fmt.Sprintf("Platform %s is not implemented", platform))
	}
	return nil, NewProviderUnsupportedError(fmt.Sprintf("Unsupported platform: %s", platform))
}

func (s *ConnectorService) requireAccount(ctx context.Context, accountID string) (LinkedAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return LinkedAccount{}, fmt.Errorf("core: account id is required")
	}
	account, err := s.accountStore.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LinkedAccount{}, NewAccountNotFoundError("Account not found")
		}
		return LinkedAccount{}, err
	}
	return account, nil
}

func (s *ConnectorService) failSyncJob(ctx context.Context, jobID string, cause error) error {
	if failErr := s.syncJobStore.Fail(ctx, jobID, cause); failErr != nil {
		s.logError(ctx, "sync job failure update failed", map[string]any{
			"job_id": jobID,
			"cause":  failErr.Error(),
		})
	}
	return s.mapError(cause)
}

func (s *ConnectorService) enqueueSyncJob(ctx context.Context, accountID string) {
	if s.jobEnqueuer == nil {
		return
	}
	if enqueueErr := s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDAccountSync,
		Parameters: map[string]any{
			"account_id": accountID,
		},
		IdempotencyKey: "connector.sync." + accountID,
		DedupPolicy:    "drop",
	}); enqueueErr != nil {
		s.logError(ctx, "sync job enqueue failed", map[string]any{
			"account_id": accountID,
			"cause":      enqueueErr.Error(),
		})
	}
}
