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

type SyncJobStore struct {
	db   *bun.DB
	repo repository.Repository[*syncJobRecord]
}

func NewSyncJobStore(db *bun.DB) (*SyncJobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncJobRecord](db, syncJobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync job repository wiring: %w", err)
		}
	}
	return &SyncJobStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SyncJobStore) Create(ctx context.Context, job core.SyncJob) (core.SyncJob, error) {
	if s == nil || s.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	if strings.TrimSpace(job.AccountID) == "" {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job account id is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = core.SyncJobStatusPending
	}

	record := newSyncJobRecord(job, now)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) Get(ctx context.Context, id string) (core.SyncJob, error) {
	if s == nil || s.db == nil {
		return core.SyncJob{}, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.SyncJob{}, core.ErrSyncJobNotFound
	}

	record := &syncJobRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SyncJob{}, core.ErrSyncJobNotFound
		}
		return core.SyncJob{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncJobStore) Complete(ctx context.Context, id string, recordsProcessed int) error {
	return s.transition(ctx, id, core.SyncJobStatusCompleted, func(job *core.SyncJob) {
		job.RecordsProcessed = recordsProcessed
		job.ErrorMessage = ""
	})
}

func (s *SyncJobStore) Fail(ctx context.Context, id string, cause error) error {
	message := ""
	if cause != nil {
		message = strings.TrimSpace(cause.Error())
	}
	if message == "" {
		message = "sync failed"
	}
	return s.transition(ctx, id, core.SyncJobStatusFailed, func(job *core.SyncJob) {
		job.ErrorMessage = message
	})
}

func (s *SyncJobStore) ListByAccount(ctx context.Context, accountID string) ([]core.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: sync job store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return []core.SyncJob{}, nil
	}

	records := []*syncJobRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.started_at ASC, ?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.SyncJob, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SyncJobStore) transition(ctx context.Context, id string, status core.SyncJobStatus, apply func(*core.SyncJob)) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: sync job store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.ErrSyncJobNotFound
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &syncJobRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return core.ErrSyncJobNotFound
			}
			return err
		}

		job := record.toDomain()
		now := time.Now().UTC()
		if transitionErr := job.TransitionTo(status, now); transitionErr != nil {
			return transitionErr
		}
		if apply != nil {
			apply(&job)
		}

		record.Status = string(job.Status)
		record.CompletedAt = cloneTimePointer(job.CompletedAt)
		record.RecordsProcessed = job.RecordsProcessed
		record.ErrorMessage = job.ErrorMessage
		record.UpdatedAt = now
		_, err = tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return err
	})
}

var _ core.SyncJobStore = (*SyncJobStore)(nil)
