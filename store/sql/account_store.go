package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social-connect/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStore persists linked accounts. Token columns hold sealed bytes;
// plaintext exists only inside the domain structs handed to callers.
type AccountStore struct {
	db      *bun.DB
	repo    repository.Repository[*linkedAccountRecord]
	secrets core.SecretProvider
}

func NewAccountStore(db *bun.DB, secrets core.SecretProvider) (*AccountStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*linkedAccountRecord](db, accountHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account repository wiring: %w", err)
		}
	}
	return &AccountStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
	}, nil
}

func (s *AccountStore) Upsert(ctx context.Context, in core.UpsertAccountInput) (core.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	userID := strings.TrimSpace(in.UserID)
	platform := core.NormalizePlatform(in.Platform)
	if userID == "" || platform == "" {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: user id and platform are required")
	}
	if err := in.Profile.Validate(); err != nil {
		return core.LinkedAccount{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accessSealed, err := s.seal(ctx, in.Grant.AccessToken)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	refreshSealed, err := s.seal(ctx, in.Grant.RefreshToken)
	if err != nil {
		return core.LinkedAccount{}, err
	}

	var out core.LinkedAccount
	txErr := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, findErr := findAccountByUserAndPlatformTx(ctx, tx, userID, platform)
		if findErr != nil {
			return findErr
		}
		isNew := record == nil
		if isNew {
			record = &linkedAccountRecord{
				ID:        uuid.NewString(),
				UserID:    userID,
				Platform:  platform,
				CreatedAt: now,
			}
		}
		record.applyProfile(in.Profile)
		record.AccessToken = accessSealed
		record.RefreshToken = refreshSealed
		record.TokenExpiresAt = cloneTimePointer(in.ExpiresAt)
		if in.Grant.Scope != "" {
			record.Scope = in.Grant.Scope
		}
		record.Connected = true
		record.Verified = true
		record.SyncStatus = string(core.SyncStatusConnected)
		record.ErrorCount = 0
		record.LastError = ""
		syncedAt := now
		record.LastSyncAt = &syncedAt
		record.UpdatedAt = now

		if isNew {
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				// Lost the race to a concurrent callback for the same
				// (user, platform) pair; fold into the surviving row.
				existing, retryErr := findAccountByUserAndPlatformTx(ctx, tx, userID, platform)
				if retryErr != nil {
					return retryErr
				}
				if existing == nil {
					return insertErr
				}
				record.ID = existing.ID
				record.CreatedAt = existing.CreatedAt
				if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
					return updateErr
				}
			}
		} else {
			if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
				return updateErr
			}
		}

		out = record.toDomain(in.Grant.AccessToken, in.Grant.RefreshToken)
		return nil
	})
	if txErr != nil {
		return core.LinkedAccount{}, txErr
	}
	return out, nil
}

func (s *AccountStore) Get(ctx context.Context, id string) (core.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.LinkedAccount{}, core.ErrAccountNotFound
	}

	record := &linkedAccountRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.LinkedAccount{}, core.ErrAccountNotFound
		}
		return core.LinkedAccount{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *AccountStore) GetByUserAndPlatform(ctx context.Context, userID, platform string) (core.LinkedAccount, error) {
	if s == nil || s.db == nil {
		return core.LinkedAccount{}, fmt.Errorf("sqlstore: account store is not configured")
	}
	userID = strings.TrimSpace(userID)
	platform = core.NormalizePlatform(platform)
	if userID == "" || platform == "" {
		return core.LinkedAccount{}, core.ErrAccountNotFound
	}

	record := &linkedAccountRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.platform = ?", platform).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.LinkedAccount{}, core.ErrAccountNotFound
		}
		return core.LinkedAccount{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *AccountStore) SaveTokens(ctx context.Context, id string, grant core.TokenGrant, expiresAt *time.Time) error {
	accessSealed, err := s.seal(ctx, grant.AccessToken)
	if err != nil {
		return err
	}
	refreshSealed, err := s.seal(ctx, grant.RefreshToken)
	if err != nil {
		return err
	}
	return s.update(ctx, id, func(record *linkedAccountRecord) {
		record.AccessToken = accessSealed
		record.RefreshToken = refreshSealed
		if grant.Scope != "" {
			record.Scope = grant.Scope
		}
		record.TokenExpiresAt = cloneTimePointer(expiresAt)
		record.SyncStatus = string(core.SyncStatusConnected)
		record.ErrorCount = 0
		record.LastError = ""
	})
}

func (s *AccountStore) MarkTokenExpired(ctx context.Context, id string, cause string) error {
	return s.update(ctx, id, func(record *linkedAccountRecord) {
		record.SyncStatus = string(core.SyncStatusTokenExpired)
		record.ErrorCount++
		record.LastError = strings.TrimSpace(cause)
	})
}

func (s *AccountStore) SaveProfile(ctx context.Context, id string, profile core.Profile, syncedAt time.Time) error {
	return s.update(ctx, id, func(record *linkedAccountRecord) {
		record.applyProfile(profile)
		synced := syncedAt.UTC()
		record.LastSyncAt = &synced
	})
}

func (s *AccountStore) Disconnect(ctx context.Context, id, userID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	id = strings.TrimSpace(id)
	userID = strings.TrimSpace(userID)
	if id == "" || userID == "" {
		return nil
	}

	// Filtering on both id and owner makes a cross-user disconnect a
	// zero-row no-op rather than an error.
	_, err := s.db.NewUpdate().
		Model((*linkedAccountRecord)(nil)).
		Set("connected = ?", false).
		Set("access_token = NULL").
		Set("refresh_token = NULL").
		Set("token_expires_at = NULL").
		Set("sync_status = ?", string(core.SyncStatusDisconnected)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (s *AccountStore) update(ctx context.Context, id string, apply func(*linkedAccountRecord)) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrAccountNotFound
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &linkedAccountRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrAccountNotFound
			}
			return err
		}
		apply(record)
		record.UpdatedAt = time.Now().UTC()
		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
}

func (s *AccountStore) toDomain(ctx context.Context, record *linkedAccountRecord) (core.LinkedAccount, error) {
	access, err := s.unseal(ctx, record.AccessToken)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	refresh, err := s.unseal(ctx, record.RefreshToken)
	if err != nil {
		return core.LinkedAccount{}, err
	}
	return record.toDomain(access, refresh), nil
}

func (s *AccountStore) seal(ctx context.Context, plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	if s.secrets == nil {
		return []byte(plaintext), nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: seal token: %w", err)
	}
	return sealed, nil
}

func (s *AccountStore) unseal(ctx context.Context, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if s.secrets == nil {
		return string(sealed), nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, sealed)
	if err != nil {
		return "", fmt.Errorf("sqlstore: unseal token: %w", err)
	}
	return string(plaintext), nil
}

func findAccountByUserAndPlatformTx(ctx context.Context, tx bun.Tx, userID, platform string) (*linkedAccountRecord, error) {
	record := &linkedAccountRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.platform = ?", platform).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.AccountStore = (*AccountStore)(nil)
