package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type serviceFixture struct {
	service   *ConnectorService
	accounts  *MemoryAccountStore
	jobs      *MemorySyncJobStore
	snapshots *MemorySnapshotStore
}

func newServiceFixture(t *testing.T, providers []Provider, extra ...Option) serviceFixture {
	t.Helper()

	registry := NewProviderRegistry()
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			t.Fatalf("register provider %s: %v", provider.ID(), err)
		}
	}

	accounts := NewMemoryAccountStore()
	jobs := NewMemorySyncJobStore()
	snapshots := NewMemorySnapshotStore()

	options := append([]Option{
		WithRegistry(registry),
		WithAccountStore(accounts),
		WithSyncJobStore(jobs),
		WithSnapshotStore(snapshots),
	}, extra...)

	service, err := NewConnectorService(Config{}, options...)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return serviceFixture{
		service:   service,
		accounts:  accounts,
		jobs:      jobs,
		snapshots: snapshots,
	}
}

func expiredState(t *testing.T, userID, platform string, age time.Duration) string {
	t.Helper()
	codec := NewStateTokenCodec(DefaultStateTTL)
	codec.Now = func() time.Time { return time.Now().UTC().Add(-age) }
	state, err := codec.Encode(userID, platform)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	return state
}

func richError(t *testing.T, err error) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T: %v", err, err)
	}
	return rich
}

func linkAccount(t *testing.T, fx serviceFixture, provider *stubProvider, userID string) LinkedAccount {
	t.Helper()
	state, err := fx.service.stateCodec.Encode(userID, provider.id)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	if _, err := fx.service.Callback(context.Background(), CallbackRequest{
		Platform:    provider.id,
		Code:        "auth-code",
		RedirectURI: "https://app.example/cb",
		State:       state,
	}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	account, err := fx.accounts.GetByUserAndPlatform(context.Background(), userID, provider.id)
	if err != nil {
		t.Fatalf("load linked account: %v", err)
	}
	return account
}

func TestInit_IssuesAuthorizationURLWithDecodableState(t *testing.T) {
	provider := &stubProvider{
		id:     "linkedin",
		scopes: []string{"openid", "profile"},
		beginAuth: func(_ context.Context, req BeginAuthRequest) (BeginAuthResponse, error) {
			return BeginAuthResponse{
				URL: "https://www.linkedin.com/oauth/v2/authorization?client_id=cid&state=" + req.State,
			}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})

	resp, err := fx.service.Init(context.Background(), InitRequest{
		UserID:      "u1",
		Platform:    "linkedin",
		RedirectURI: "https://app.example/cb",
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.HasPrefix(resp.AuthorizationURL, "https://www.linkedin.com/oauth/v2/authorization?client_id=") {
		t.Fatalf("unexpected authorization url: %s", resp.AuthorizationURL)
	}
	if resp.State == "" {
		t.Fatalf("expected state in response")
	}

	payload, err := base64.RawURLEncoding.DecodeString(resp.State)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	var token map[string]any
	if err := json.Unmarshal(payload, &token); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if token["userId"] != "u1" || token["platform"] != "linkedin" {
		t.Fatalf("unexpected state payload: %v", token)
	}
}

func TestInit_RequiresSession(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "linkedin"}})

	_, err := fx.service.Init(context.Background(), InitRequest{Platform: "linkedin"})
	rich := richError(t, err)
	if rich.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rich.Code)
	}
}

func TestInit_DistinguishesUnsupportedFromNotImplemented(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "linkedin"}})

	_, err := fx.service.Init(context.Background(), InitRequest{UserID: "u1", Platform: "myspace"})
	rich := richError(t, err)
	if rich.Code != http.StatusBadRequest || rich.TextCode != ConnectorErrorProviderUnsupported {
		t.Fatalf("expected 400 %s, got %d %s", ConnectorErrorProviderUnsupported, rich.Code, rich.TextCode)
	}

	_, err = fx.service.Init(context.Background(), InitRequest{UserID: "u1", Platform: "tiktok"})
	rich = richError(t, err)
	if rich.Code != http.StatusNotImplemented || rich.TextCode != ConnectorErrorNotImplemented {
		t.Fatalf("expected 501 %s, got %d %s", ConnectorErrorNotImplemented, rich.Code, rich.TextCode)
	}
}

func TestCallback_LinksAccountSeedsJobAndSnapshot(t *testing.T) {
	provider := &stubProvider{
		id: "instagram",
		exchangeCode: func(_ context.Context, req ExchangeRequest) (TokenGrant, error) {
			if req.Code != "auth-code" {
				return TokenGrant{}, fmt.Errorf("unexpected code %q", req.Code)
			}
			return TokenGrant{
				AccessToken:  "access-token",
				RefreshToken: "refresh-token",
				ExpiresIn:    3600,
				Scope:        "user_profile",
			}, nil
		},
		fetchProfile: func(_ context.Context, accessToken string) (Profile, error) {
			if accessToken != "access-token" {
				return Profile{}, fmt.Errorf("unexpected access token %q", accessToken)
			}
			return Profile{
				PlatformUserID: "ig-1",
				Username:       "creator",
				DisplayName:    "Creator",
				Followers:      5000,
				Following:      120,
				EngagementRate: 3.4,
			}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})

	state, err := fx.service.stateCodec.Encode("u1", "instagram")
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}

	resp, err := fx.service.Callback(context.Background(), CallbackRequest{
		Platform:    "instagram",
		Code:        "auth-code",
		RedirectURI: "https://app.example/cb",
		State:       state,
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response")
	}
	if resp.Account.Username != "creator" || resp.Account.Followers != 5000 {
		t.Fatalf("unexpected account summary: %+v", resp.Account)
	}

	account, err := fx.accounts.GetByUserAndPlatform(context.Background(), "u1", "instagram")
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if !account.Connected || !account.Verified || account.SyncStatus != SyncStatusConnected {
		t.Fatalf("unexpected account state: %+v", account)
	}
	if account.AccessToken != "access-token" || account.RefreshToken != "refresh-token" {
		t.Fatalf("expected tokens to be stored")
	}
	if account.TokenExpiresAt == nil {
		t.Fatalf("expected computed token expiry")
	}
	if account.LastSyncAt == nil {
		t.Fatalf("expected last_sync to be set")
	}

	jobs, err := fx.jobs.ListByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Type != SyncJobTypeFull || jobs[0].Status != SyncJobStatusPending {
		t.Fatalf("expected one pending full sync job, got %+v", jobs)
	}

	snapshots, err := fx.snapshots.ListByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Followers != 5000 {
		t.Fatalf("expected one snapshot with follower count, got %+v", snapshots)
	}
	if snapshots[0].MetricDate != MetricDateFor(time.Now().UTC()) {
		t.Fatalf("expected today's metric date, got %s", snapshots[0].MetricDate)
	}
}

func TestCallback_RejectsExpiredState(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "linkedin"}})

	_, err := fx.service.Callback(context.Background(), CallbackRequest{
		Platform: "linkedin",
		Code:     "auth-code",
		State:    expiredState(t, "u1", "linkedin", 6*time.Minute),
	})
	rich := richError(t, err)
	if rich.Code != http.StatusBadRequest || rich.TextCode != ConnectorErrorStateInvalid {
		t.Fatalf("expected 400 %s, got %d %s", ConnectorErrorStateInvalid, rich.Code, rich.TextCode)
	}
	if rich.Message != "Invalid state token" {
		t.Fatalf("unexpected message %q", rich.Message)
	}
}

func TestCallback_RejectsPlatformMismatch(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "linkedin"}, &stubProvider{id: "instagram"}})

	state, err := fx.service.stateCodec.Encode("u1", "linkedin")
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	_, err = fx.service.Callback(context.Background(), CallbackRequest{
		Platform: "instagram",
		Code:     "auth-code",
		State:    state,
	})
	rich := richError(t, err)
	if rich.TextCode != ConnectorErrorStateInvalid {
		t.Fatalf("expected %s, got %s", ConnectorErrorStateInvalid, rich.TextCode)
	}
}

func TestCallback_ReplayGuardMakesStateSingleUse(t *testing.T) {
	provider := &stubProvider{id: "instagram"}
	fx := newServiceFixture(t, []Provider{provider}, WithReplayGuard(NewMemoryReplayGuard()))

	state, err := fx.service.stateCodec.Encode("u1", "instagram")
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	request := CallbackRequest{
		Platform: "instagram",
		Code:     "auth-code",
		State:    state,
	}

	if _, err := fx.service.Callback(context.Background(), request); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	_, err = fx.service.Callback(context.Background(), request)
	rich := richError(t, err)
	if rich.TextCode != ConnectorErrorStateInvalid {
		t.Fatalf("expected replayed state to be rejected, got %s", rich.TextCode)
	}
}

func TestCallback_TokenExchangeFailureIsSurfaced(t *testing.T) {
	provider := &stubProvider{
		id: "instagram",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{}, fmt.Errorf("instagram: token endpoint returned status 400")
		},
	}
	fx := newServiceFixture(t, []Provider{provider})

	state, err := fx.service.stateCodec.Encode("u1", "instagram")
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	_, err = fx.service.Callback(context.Background(), CallbackRequest{
		Platform: "instagram",
		Code:     "bad-code",
		State:    state,
	})
	rich := richError(t, err)
	if rich.Code != http.StatusInternalServerError || rich.TextCode != ConnectorErrorTokenExchangeFailed {
		t.Fatalf("expected 500 %s, got %d %s", ConnectorErrorTokenExchangeFailed, rich.Code, rich.TextCode)
	}
	if strings.Contains(rich.Message, "status 400") {
		t.Fatalf("expected upstream detail to stay out of the message, got %q", rich.Message)
	}
}

func TestRefresh_RequiresRefreshToken(t *testing.T) {
	provider := &stubProvider{
		id: "instagram",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			// Long-lived token, no refresh token issued.
			return TokenGrant{AccessToken: "access"}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	_, err := fx.service.Refresh(context.Background(), RefreshRequest{AccountID: account.ID})
	rich := richError(t, err)
	if rich.Code != http.StatusBadRequest || rich.TextCode != ConnectorErrorNoRefreshToken {
		t.Fatalf("expected 400 %s, got %d %s", ConnectorErrorNoRefreshToken, rich.Code, rich.TextCode)
	}
}

func TestRefresh_FailureMarksAccountTokenExpired(t *testing.T) {
	provider := &stubProvider{
		id: "twitter",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "access", RefreshToken: "refresh"}, nil
		},
		refresh: func(context.Context, string) (TokenGrant, error) {
			return TokenGrant{}, fmt.Errorf("twitter: invalid_grant")
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	_, err := fx.service.Refresh(context.Background(), RefreshRequest{AccountID: account.ID})
	rich := richError(t, err)
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rich.Code)
	}

	updated, err := fx.accounts.Get(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if updated.SyncStatus != SyncStatusTokenExpired {
		t.Fatalf("expected token_expired, got %s", updated.SyncStatus)
	}
	if updated.ErrorCount != 1 {
		t.Fatalf("expected error_count 1, got %d", updated.ErrorCount)
	}
	if !strings.Contains(updated.LastError, "invalid_grant") {
		t.Fatalf("expected last_error to record cause, got %q", updated.LastError)
	}
}

func TestRefresh_SuccessResetsHealthAndKeepsRefreshToken(t *testing.T) {
	provider := &stubProvider{
		id: "twitter",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "old-access", RefreshToken: "old-refresh"}, nil
		},
		refresh: func(_ context.Context, refreshToken string) (TokenGrant, error) {
			if refreshToken != "old-refresh" {
				return TokenGrant{}, fmt.Errorf("unexpected refresh token %q", refreshToken)
			}
			// Provider omits the rotated refresh token.
			return TokenGrant{AccessToken: "new-access", ExpiresIn: 7200}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	if err := fx.accounts.MarkTokenExpired(context.Background(), account.ID, "previous failure"); err != nil {
		t.Fatalf("seed degraded health: %v", err)
	}

	resp, err := fx.service.Refresh(context.Background(), RefreshRequest{AccountID: account.ID})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !resp.Success || resp.TokenExpiresAt == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	updated, err := fx.accounts.Get(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if updated.AccessToken != "new-access" {
		t.Fatalf("expected new access token, got %q", updated.AccessToken)
	}
	if updated.RefreshToken != "old-refresh" {
		t.Fatalf("expected prior refresh token to be kept, got %q", updated.RefreshToken)
	}
	if updated.SyncStatus != SyncStatusConnected || updated.ErrorCount != 0 || updated.LastError != "" {
		t.Fatalf("expected health reset, got %+v", updated)
	}
}

func TestRefresh_UnknownAccount(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "twitter"}})

	_, err := fx.service.Refresh(context.Background(), RefreshRequest{AccountID: "missing"})
	rich := richError(t, err)
	if rich.Code != http.StatusNotFound || rich.TextCode != ConnectorErrorAccountNotFound {
		t.Fatalf("expected 404 %s, got %d %s", ConnectorErrorAccountNotFound, rich.Code, rich.TextCode)
	}
}

func TestDisconnect_ClearsTokensAndIsOwnerScoped(t *testing.T) {
	provider := &stubProvider{
		id: "instagram",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	// A cross-user disconnect touches zero rows.
	if _, err := fx.service.Disconnect(context.Background(), DisconnectRequest{
		UserID:    "intruder",
		AccountID: account.ID,
	}); err != nil {
		t.Fatalf("cross-user disconnect: %v", err)
	}
	untouched, _ := fx.accounts.Get(context.Background(), account.ID)
	if !untouched.Connected {
		t.Fatalf("expected cross-user disconnect to be a no-op")
	}

	if _, err := fx.service.Disconnect(context.Background(), DisconnectRequest{
		UserID:    "u1",
		AccountID: account.ID,
	}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	updated, _ := fx.accounts.Get(context.Background(), account.ID)
	if updated.Connected || updated.AccessToken != "" || updated.RefreshToken != "" || updated.TokenExpiresAt != nil {
		t.Fatalf("expected tokens cleared, got %+v", updated)
	}
	if updated.SyncStatus != SyncStatusDisconnected {
		t.Fatalf("expected disconnected status, got %s", updated.SyncStatus)
	}

	// Second call is idempotent.
	if _, err := fx.service.Disconnect(context.Background(), DisconnectRequest{
		UserID:    "u1",
		AccountID: account.ID,
	}); err != nil {
		t.Fatalf("repeat disconnect: %v", err)
	}
}

func TestSync_UpdatesMetricsAndCompletesJob(t *testing.T) {
	followers := int64(5000)
	provider := &stubProvider{
		id: "tiktok",
		fetchProfile: func(context.Context, string) (Profile, error) {
			return Profile{
				PlatformUserID: "tt-1",
				Username:       "creator",
				Followers:      followers,
				EngagementRate: 4.2,
			}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	followers = 6000
	resp, err := fx.service.Sync(context.Background(), SyncRequest{AccountID: account.ID})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !resp.Success || resp.RecordsProcessed != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Account.Followers != 6000 {
		t.Fatalf("expected refreshed follower count, got %d", resp.Account.Followers)
	}

	jobs, err := fx.jobs.ListByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var metricJobs []SyncJob
	for _, job := range jobs {
		if job.Type == SyncJobTypeMetrics {
			metricJobs = append(metricJobs, job)
		}
	}
	if len(metricJobs) != 1 || metricJobs[0].Status != SyncJobStatusCompleted || metricJobs[0].RecordsProcessed != 1 {
		t.Fatalf("expected completed metrics job, got %+v", metricJobs)
	}
	if metricJobs[0].CompletedAt == nil {
		t.Fatalf("expected completed_at on terminal job")
	}
}

func TestSync_FailureMarksJobFailedAndLeavesAccountUntouched(t *testing.T) {
	healthy := true
	provider := &stubProvider{
		id: "tiktok",
		fetchProfile: func(context.Context, string) (Profile, error) {
			if healthy {
				return Profile{PlatformUserID: "tt-1", Username: "creator", Followers: 100}, nil
			}
			return Profile{}, fmt.Errorf("tiktok: profile endpoint returned status 401")
		},
	}
	fx := newServiceFixture(t, []Provider{provider})
	account := linkAccount(t, fx, provider, "u1")

	healthy = false
	_, err := fx.service.Sync(context.Background(), SyncRequest{AccountID: account.ID})
	rich := richError(t, err)
	if rich.Code != http.StatusInternalServerError || rich.TextCode != ConnectorErrorProfileFetchFailed {
		t.Fatalf("expected 500 %s, got %d %s", ConnectorErrorProfileFetchFailed, rich.Code, rich.TextCode)
	}

	jobs, _ := fx.jobs.ListByAccount(context.Background(), account.ID)
	var failed *SyncJob
	for i := range jobs {
		if jobs[i].Type == SyncJobTypeMetrics {
			failed = &jobs[i]
		}
	}
	if failed == nil || failed.Status != SyncJobStatusFailed {
		t.Fatalf("expected failed metrics job, got %+v", jobs)
	}
	if failed.ErrorMessage == "" {
		t.Fatalf("expected error message on failed job")
	}

	untouched, _ := fx.accounts.Get(context.Background(), account.ID)
	if untouched.Followers != 100 {
		t.Fatalf("expected account metrics untouched on failure, got %d", untouched.Followers)
	}
}

func TestStatus_ReportsConnectionState(t *testing.T) {
	provider := &stubProvider{id: "instagram"}
	fx := newServiceFixture(t, []Provider{provider})

	resp, err := fx.service.Status(context.Background(), StatusRequest{UserID: "u1", Platform: "instagram"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if resp.Connected || resp.Account != nil {
		t.Fatalf("expected disconnected status for unknown pair, got %+v", resp)
	}

	account := linkAccount(t, fx, provider, "u1")
	resp, err = fx.service.Status(context.Background(), StatusRequest{UserID: "u1", Platform: "instagram"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Connected || resp.Account == nil || resp.Account.ID != account.ID {
		t.Fatalf("expected connected status, got %+v", resp)
	}
}

func TestStatus_RequiresSession(t *testing.T) {
	fx := newServiceFixture(t, []Provider{&stubProvider{id: "instagram"}})

	_, err := fx.service.Status(context.Background(), StatusRequest{Platform: "instagram"})
	rich := richError(t, err)
	if rich.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rich.Code)
	}
}
