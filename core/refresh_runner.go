package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultRefreshMaxAttempts    = 3
	defaultRefreshInitialBackoff = 500 * time.Millisecond
	defaultRefreshMaxBackoff     = 10 * time.Second
)

type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultRefreshInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultRefreshMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type RefreshRunResult struct {
	Attempts     int
	TokenExpired bool
}

type RefreshRunOptions struct {
	MaxAttempts int
}

// RunRefreshWithRetry wraps Refresh with bounded retry for transient
// provider failures. Refresh is idempotent against the provider, so a
// retry is safe. Unrecoverable failures (revoked grants, missing refresh
// tokens) stop immediately; Refresh has already marked the account
// token_expired by the time they surface.
func (s *ConnectorService) RunRefreshWithRetry(ctx context.Context, req RefreshRequest, opts RefreshRunOptions) (RefreshRunResult, error) {
	if s == nil {
		return RefreshRunResult{}, fmt.Errorf("core: service is nil")
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return RefreshRunResult{}, s.mapError(fmt.Errorf("core: account id is required"))
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultRefreshMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.Refresh(ctx, req)
		if err == nil {
			return RefreshRunResult{Attempts: attempt}, nil
		}
		lastErr = err

		if isUnrecoverableRefreshError(err) || attempt == maxAttempts {
			return RefreshRunResult{Attempts: attempt, TokenExpired: true}, s.mapError(err)
		}

		delay := defaultRefreshInitialBackoff
		if s.refreshScheduler != nil {
			delay = s.refreshScheduler.NextDelay(attempt)
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return RefreshRunResult{Attempts: attempt}, s.mapError(waitErr)
		}
	}

	return RefreshRunResult{Attempts: maxAttempts}, s.mapError(lastErr)
}

func isUnrecoverableRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound:
			return true
		}
		switch strings.TrimSpace(strings.ToUpper(richErr.TextCode)) {
		case ConnectorErrorAccountNotFound, ConnectorErrorNoRefreshToken, ConnectorErrorUnauthorized:
			return true
		}
	}

	for cause := err; cause != nil; cause = errors.Unwrap(cause) {
		msg := strings.ToLower(strings.TrimSpace(cause.Error()))
		if strings.Contains(msg, "invalid_grant") ||
			strings.Contains(msg, "invalid refresh token") ||
			strings.Contains(msg, "reauthorization required") {
			return true
		}
	}
	return false
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
