package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestExponentialBackoffScheduler_NextDelay(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{Initial: time.Second, Max: 5 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := scheduler.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestRunRefreshWithRetry_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	provider := &stubProvider{
		id: "twitter",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "access", RefreshToken: "refresh"}, nil
		},
		refresh: func(context.Context, string) (TokenGrant, error) {
			attempts++
			if attempts < 3 {
				return TokenGrant{}, fmt.Errorf("twitter: temporary upstream failure")
			}
			return TokenGrant{AccessToken: "new-access", RefreshToken: "refresh"}, nil
		},
	}
	fx := newServiceFixture(t, []Provider{provider},
		WithRefreshBackoffScheduler(ExponentialBackoffScheduler{Initial: time.Millisecond, Max: time.Millisecond}),
	)
	account := linkAccount(t, fx, provider, "u1")

	result, err := fx.service.RunRefreshWithRetry(context.Background(), RefreshRequest{AccountID: account.ID}, RefreshRunOptions{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("run refresh: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.TokenExpired {
		t.Fatalf("did not expect token_expired result")
	}

	updated, _ := fx.accounts.Get(context.Background(), account.ID)
	if updated.SyncStatus != SyncStatusConnected {
		t.Fatalf("expected connected status after successful retry, got %s", updated.SyncStatus)
	}
}

func TestRunRefreshWithRetry_StopsOnUnrecoverableError(t *testing.T) {
	attempts := 0
	provider := &stubProvider{
		id: "twitter",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "access", RefreshToken: "refresh"}, nil
		},
		refresh: func(context.Context, string) (TokenGrant, error) {
			attempts++
			return TokenGrant{}, fmt.Errorf("twitter: invalid_grant")
		},
	}
	fx := newServiceFixture(t, []Provider{provider},
		WithRefreshBackoffScheduler(ExponentialBackoffScheduler{Initial: time.Millisecond, Max: time.Millisecond}),
	)
	account := linkAccount(t, fx, provider, "u1")

	result, err := fx.service.RunRefreshWithRetry(context.Background(), RefreshRequest{AccountID: account.ID}, RefreshRunOptions{MaxAttempts: 5})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt for an unrecoverable error, got %d", attempts)
	}
	if !result.TokenExpired {
		t.Fatalf("expected token_expired result")
	}

	updated, _ := fx.accounts.Get(context.Background(), account.ID)
	if updated.SyncStatus != SyncStatusTokenExpired {
		t.Fatalf("expected token_expired status, got %s", updated.SyncStatus)
	}
}

func TestRunRefreshWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	provider := &stubProvider{
		id: "twitter",
		exchangeCode: func(context.Context, ExchangeRequest) (TokenGrant, error) {
			return TokenGrant{AccessToken: "access", RefreshToken: "refresh"}, nil
		},
		refresh: func(context.Context, string) (TokenGrant, error) {
			attempts++
			return TokenGrant{}, fmt.Errorf("twitter: temporary upstream failure")
		},
	}
	fx := newServiceFixture(t, []Provider{provider},
		WithRefreshBackoffScheduler(ExponentialBackoffScheduler{Initial: time.Millisecond, Max: time.Millisecond}),
	)
	account := linkAccount(t, fx, provider, "u1")

	result, err := fx.service.RunRefreshWithRetry(context.Background(), RefreshRequest{AccountID: account.ID}, RefreshRunOptions{MaxAttempts: 2})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if attempts != 2 || result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d (%d reported)", attempts, result.Attempts)
	}
	if !result.TokenExpired {
		t.Fatalf("expected token_expired result after final attempt")
	}
}
