package inbound

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-social-connect/core"
)

type stubVerifier struct {
	userID string
	err    error
	calls  int
}

func (v *stubVerifier) Verify(ctx context.Context, authorization string) (string, error) {
	v.calls++
	if v.err != nil {
		return "", v.err
	}
	return v.userID, nil
}

type stubPlatform struct {
	id     string
	scopes []string

	beginAuth    func(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error)
	exchangeCode func(ctx context.Context, req core.ExchangeRequest) (core.TokenGrant, error)
	refresh      func(ctx context.Context, refreshToken string) (core.TokenGrant, error)
	fetchProfile func(ctx context.Context, accessToken string) (core.Profile, error)
}

func (p *stubPlatform) ID() string       { return p.id }
func (p *stubPlatform) Scopes() []string { return p.scopes }

func (p *stubPlatform) BeginAuth(ctx context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p.beginAuth != nil {
		return p.beginAuth(ctx, req)
	}
	return core.BeginAuthResponse{URL: "https://auth.example/" + p.id + "?state=" + req.State}, nil
}

func (p *stubPlatform) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenGrant, error) {
	if p.exchangeCode != nil {
		return p.exchangeCode(ctx, req)
	}
	return core.TokenGrant{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
}

func (p *stubPlatform) Refresh(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	if p.refresh != nil {
		return p.refresh(ctx, refreshToken)
	}
	return core.TokenGrant{AccessToken: "refreshed", ExpiresIn: 3600}, nil
}

func (p *stubPlatform) FetchProfile(ctx context.Context, accessToken string) (core.Profile, error) {
	if p.fetchProfile != nil {
		return p.fetchProfile(ctx, accessToken)
	}
	return core.Profile{PlatformUserID: "pid-1", Username: "creator", Followers: 1200}, nil
}

func newTestDispatcher(t *testing.T, verifier core.SessionVerifier, platforms ...*stubPlatform) *Dispatcher {
	t.Helper()

	registry := core.NewProviderRegistry()
	if len(platforms) == 0 {
		platforms = []*stubPlatform{{id: "instagram"}}
	}
	for _, platform := range platforms {
		if err := registry.Register(platform); err != nil {
			t.Fatalf("register platform %s: %v", platform.id, err)
		}
	}

	service, err := core.NewConnectorService(core.Config{},
		core.WithRegistry(registry),
		core.WithAccountStore(core.NewMemoryAccountStore()),
		core.WithSyncJobStore(core.NewMemorySyncJobStore()),
		core.WithSnapshotStore(core.NewMemorySnapshotStore()),
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	dispatcher, err := NewDispatcher(service, WithSessionVerifier(verifier))
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	return dispatcher
}

func freshState(t *testing.T, userID, platform string) string {
	t.Helper()
	state, err := core.NewStateTokenCodec(core.DefaultStateTTL).Encode(userID, platform)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	return state
}

func dispatchStatusCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T: %v", err, err)
	}
	return rich.Code
}

func TestDispatcher_RejectsUnknownAction(t *testing.T) {
	dispatcher := newTestDispatcher(t, &stubVerifier{userID: "user-1"})

	_, err := dispatcher.Dispatch(context.Background(), "Bearer token", Request{Action: "revoke"})
	if code := dispatchStatusCode(t, err); code != 400 {
		t.Fatalf("expected 400 for unknown action, got %d", code)
	}
}

func TestDispatcher_SessionRequiredForEverythingButCallback(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("token rejected")}
	dispatcher := newTestDispatcher(t, verifier)

	for _, action := range []string{ActionInit, ActionRefresh, ActionDisconnect, ActionSync, ActionStatus} {
		_, err := dispatcher.Dispatch(context.Background(), "Bearer bad", Request{
			Action:   action,
			Platform: "instagram",
		})
		if code := dispatchStatusCode(t, err); code != 401 {
			t.Fatalf("action %s: expected 401, got %d", action, code)
		}
	}

	verifierCalls := verifier.calls
	response, err := dispatcher.Dispatch(context.Background(), "", Request{
		Action:   ActionCallback,
		Platform: "instagram",
		Code:     "auth-code",
		State:    freshState(t, "user-1", "instagram"),
	})
	if err != nil {
		t.Fatalf("callback without session: %v", err)
	}
	if verifier.calls != verifierCalls {
		t.Fatalf("callback must not consult the session verifier")
	}
	callback, ok := response.(core.CallbackResponse)
	if !ok {
		t.Fatalf("expected callback response, got %T", response)
	}
	if !callback.Success || callback.Account.Platform != "instagram" {
		t.Fatalf("unexpected callback response: %+v", callback)
	}
}

func TestDispatcher_InitCarriesSessionUser(t *testing.T) {
	platform := &stubPlatform{id: "instagram"}
	dispatcher := newTestDispatcher(t, &stubVerifier{userID: "user-9"}, platform)

	response, err := dispatcher.Dispatch(context.Background(), "Bearer good", Request{
		Action:      "  Init  ",
		Platform:    "Instagram",
		RedirectURI: "https://app.example/oauth/done",
	})
	if err != nil {
		t.Fatalf("dispatch init: %v", err)
	}
	init, ok := response.(core.InitResponse)
	if !ok {
		t.Fatalf("expected init response, got %T", response)
	}
	if init.AuthorizationURL == "" || init.State == "" {
		t.Fatalf("expected populated init response: %+v", init)
	}

	token, err := core.NewStateTokenCodec(core.DefaultStateTTL).Decode(init.State)
	if err != nil {
		t.Fatalf("decode issued state: %v", err)
	}
	if token.UserID != "user-9" || token.Platform != "instagram" {
		t.Fatalf("state token bound to wrong identity: %+v", token)
	}
}

func TestDispatcher_StatusScopedToSessionUser(t *testing.T) {
	platform := &stubPlatform{id: "instagram"}
	verifier := &stubVerifier{userID: "user-1"}
	dispatcher := newTestDispatcher(t, verifier, platform)

	if _, err := dispatcher.Dispatch(context.Background(), "", Request{
		Action:   ActionCallback,
		Platform: "instagram",
		Code:     "auth-code",
		State:    freshState(t, "user-1", "instagram"),
	}); err != nil {
		t.Fatalf("link account: %v", err)
	}

	response, err := dispatcher.Dispatch(context.Background(), "Bearer good", Request{
		Action:   ActionStatus,
		Platform: "instagram",
	})
	if err != nil {
		t.Fatalf("status for owner: %v", err)
	}
	status, ok := response.(core.StatusResponse)
	if !ok {
		t.Fatalf("expected status response, got %T", response)
	}
	if !status.Connected || status.Account == nil {
		t.Fatalf("expected connected status for owner: %+v", status)
	}

	verifier.userID = "user-2"
	response, err = dispatcher.Dispatch(context.Background(), "Bearer other", Request{
		Action:   ActionStatus,
		Platform: "instagram",
	})
	if err != nil {
		t.Fatalf("status for other user: %v", err)
	}
	status = response.(core.StatusResponse)
	if status.Connected || status.Account != nil {
		t.Fatalf("status must not leak another user's account: %+v", status)
	}
}

func TestDispatcher_RefreshRoutesAccountID(t *testing.T) {
	platform := &stubPlatform{id: "tiktok"}
	dispatcher := newTestDispatcher(t, &stubVerifier{userID: "user-1"}, platform)

	linked, err := dispatcher.Dispatch(context.Background(), "", Request{
		Action:   ActionCallback,
		Platform: "tiktok",
		Code:     "auth-code",
		State:    freshState(t, "user-1", "tiktok"),
	})
	if err != nil {
		t.Fatalf("link account: %v", err)
	}
	accountID := linked.(core.CallbackResponse).Account.ID

	response, err := dispatcher.Dispatch(context.Background(), "Bearer good", Request{
		Action:    ActionRefresh,
		AccountID: accountID,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	refresh, ok := response.(core.RefreshResponse)
	if !ok {
		t.Fatalf("expected refresh response, got %T", response)
	}
	if !refresh.Success || refresh.TokenExpiresAt == nil {
		t.Fatalf("unexpected refresh response: %+v", refresh)
	}
}
