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

type SnapshotStore struct {
	db   *bun.DB
	repo repository.Repository[*audienceSnapshotRecord]
}

func NewSnapshotStore(db *bun.DB) (*SnapshotStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*audienceSnapshotRecord](db, snapshotHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid snapshot repository wiring: %w", err)
		}
	}
	return &SnapshotStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SnapshotStore) UpsertDaily(ctx context.Context, snapshot core.AudienceSnapshot) (core.AudienceSnapshot, error) {
	if s == nil || s.db == nil {
		return core.AudienceSnapshot{}, fmt.Errorf("sqlstore: snapshot store is not configured")
	}
	accountID := strings.TrimSpace(snapshot.AccountID)
	metricDate := strings.TrimSpace(snapshot.MetricDate)
	if accountID == "" {
		return core.AudienceSnapshot{}, fmt.Errorf("sqlstore: snapshot account id is required")
	}
	if metricDate == "" {
		metricDate = core.MetricDateFor(time.Now())
	}
	now := time.Now().UTC()

	var out core.AudienceSnapshot
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, findErr := findSnapshotTx(ctx, tx, accountID, metricDate)
		if findErr != nil {
			return findErr
		}
		if record == nil {
			record = &audienceSnapshotRecord{
				ID:             uuid.NewString(),
				AccountID:      accountID,
				MetricDate:     metricDate,
				Followers:      snapshot.Followers,
				Following:      snapshot.Following,
				EngagementRate: snapshot.EngagementRate,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, findErr = findSnapshotTx(ctx, tx, accountID, metricDate)
				if findErr != nil {
					return findErr
				}
				if record == nil {
					return insertErr
				}
			} else {
				out = record.toDomain()
				return nil
			}
		}

		record.Followers = snapshot.Followers
		record.Following = snapshot.Following
		record.EngagementRate = snapshot.EngagementRate
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.AudienceSnapshot{}, err
	}
	return out, nil
}

func (s *SnapshotStore) ListByAccount(ctx context.Context, accountID string) ([]core.AudienceSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: snapshot store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return []core.AudienceSnapshot{}, nil
	}

	records := []*audienceSnapshotRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.metric_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]core.AudienceSnapshot, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func findSnapshotTx(ctx context.Context, tx bun.Tx, accountID, metricDate string) (*audienceSnapshotRecord, error) {
	record := &audienceSnapshotRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.metric_date = ?", metricDate).
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

var _ core.SnapshotStore = (*SnapshotStore)(nil)
