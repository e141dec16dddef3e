package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-connect/core"
)

const accountCacheKeyPrefix = "go-social-connect::linked_account::v1"

// CachedAccountStore fronts an AccountStore with a read-through cache on
// the two lookup paths. Every write invalidates both keys for the row.
type CachedAccountStore struct {
	base  core.AccountStore
	cache repositorycache.CacheService
}

func NewCachedAccountStore(base core.AccountStore, cacheService repositorycache.CacheService) (*CachedAccountStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account cache service is required")
	}
	return &CachedAccountStore{base: base, cache: cacheService}, nil
}

func accountCacheKeyByID(id string) string {
	return accountCacheKeyPrefix + "::id::" + url.PathEscape(strings.TrimSpace(id))
}

func accountCacheKeyByOwner(userID, platform string) string {
	return accountCacheKeyPrefix +
		"::owner::" + url.PathEscape(strings.TrimSpace(userID)) +
		"::" + url.PathEscape(core.NormalizePlatform(platform))
}

func (s *CachedAccountStore) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.LinkedAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	account, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	if err := s.invalidateAccount(ctx, account); err != nil {
		return core.LinkedAccount{}, err
	}
	return account, nil
}

func (s *CachedAccountStore) Get(ctx context.Context, id string) (core.LinkedAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, accountCacheKeyByID(id), func(ctx context.Context) (core.LinkedAccount, error) {
		return s.base.Get(ctx, id)
	})
}

func (s *CachedAccountStore) GetByUserAndPlatform(ctx context.Context, userID, platform string) (core.LinkedAccount, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: cached account store is not configured")
	}
	key := accountCacheKeyByOwner(userID, platform)
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.LinkedAccount, error) {
		return s.base.GetByUserAndPlatform(ctx, userID, platform)
	})
}

func (s *CachedAccountStore) SaveTokens(ctx context.Context, id string, grant core.TokenGrant, expiresAt *time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.SaveTokens(ctx, id, grant, expiresAt); err != nil {
		return err
	}
	return s.invalidateByID(ctx, id)
}

func (s *CachedAccountStore) MarkTokenExpired(ctx context.Context, id string, cause string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.MarkTokenExpired(ctx, id, cause); err != nil {
		return err
	}
	return s.invalidateByID(ctx, id)
}

func (s *CachedAccountStore) SaveProfile(ctx context.Context, id string, profile core.Profile, syncedAt time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.SaveProfile(ctx, id, profile, syncedAt); err != nil {
		return err
	}
	return s.invalidateByID(ctx, id)
}

func (s *CachedAccountStore) Disconnect(ctx context.Context, id, userID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account store is not configured")
	}
	if err := s.base.Disconnect(ctx, id, userID); err != nil {
		return err
	}
	return s.invalidateByID(ctx, id)
}

func (s *CachedAccountStore) invalidateByID(ctx context.Context, id string) error {
	account, err := s.base.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			return s.cache.Delete(ctx, accountCacheKeyByID(id))
		}
		return err
	}
	return s.invalidateAccount(ctx, account)
}

func (s *CachedAccountStore) invalidateAccount(ctx context.Context, account core.LinkedAccount) error {
	if err := s.cache.Delete(ctx, accountCacheKeyByID(account.ID)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, accountCacheKeyByOwner(account.UserID, account.Platform))
}

var _ core.AccountStore = (*CachedAccountStore)(nil)
