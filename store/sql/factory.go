package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-social-connect/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed store set from a persistence
// client or a raw bun handle. It doubles as the resulting StoreProvider.
type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider
	cache   repositorycache.CacheService

	accountStore  core.AccountStore
	syncJobStore  *SyncJobStore
	snapshotStore *SnapshotStore
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider seals token columns at rest.
func WithSecretProvider(secrets core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
	}
}

// WithAccountCache fronts account reads with a read-through cache.
func WithAccountCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.accountStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) AccountStore() core.AccountStore {
	if f == nil {
		return nil
	}
	return f.accountStore
}

func (f *RepositoryFactory) SyncJobStore() core.SyncJobStore {
	if f == nil {
		return nil
	}
	return f.syncJobStore
}

func (f *RepositoryFactory) SnapshotStore() core.SnapshotStore {
	if f == nil {
		return nil
	}
	return f.snapshotStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	accountStore, err := NewAccountStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	if f.cache != nil {
		cached, cacheErr := NewCachedAccountStore(accountStore, f.cache)
		if cacheErr != nil {
			return cacheErr
		}
		f.accountStore = cached
	} else {
		f.accountStore = accountStore
	}

	syncJobStore, err := NewSyncJobStore(f.db)
	if err != nil {
		return err
	}
	f.syncJobStore = syncJobStore

	snapshotStore, err := NewSnapshotStore(f.db)
	if err != nil {
		return err
	}
	f.snapshotStore = snapshotStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ core.StoreProvider = (*RepositoryFactory)(nil)
var _ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
