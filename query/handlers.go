package query

import (
	"context"

	"github.com/goliatone/go-social-connect/core"
)

type StatusReader interface {
	Status(ctx context.Context, req core.StatusRequest) (core.StatusResponse, error)
}

type SyncJobReader interface {
	Get(ctx context.Context, id string) (core.SyncJob, error)
	ListByAccount(ctx context.Context, accountID string) ([]core.SyncJob, error)
}

type AudienceReader interface {
	ListByAccount(ctx context.Context, accountID string) ([]core.AudienceSnapshot, error)
}

type ConnectionStatusQuery struct {
	reader StatusReader
}

func NewConnectionStatusQuery(reader StatusReader) *ConnectionStatusQuery {
	return &ConnectionStatusQuery{reader: reader}
}

func (q *ConnectionStatusQuery) Query(ctx context.Context, msg ConnectionStatusMessage) (core.StatusResponse, error) {
	if q == nil || q.reader == nil {
		return core.StatusResponse{}, queryDependencyError("query: status reader is required")
	}
	return q.reader.Status(ctx, msg.Request)
}

type GetSyncJobQuery struct {
	reader SyncJobReader
}

func NewGetSyncJobQuery(reader SyncJobReader) *GetSyncJobQuery {
	return &GetSyncJobQuery{reader: reader}
}

func (q *GetSyncJobQuery) Query(ctx context.Context, msg GetSyncJobMessage) (core.SyncJob, error) {
	if q == nil || q.reader == nil {
		return core.SyncJob{}, queryDependencyError("query: sync job reader is required")
	}
	return q.reader.Get(ctx, msg.JobID)
}

type ListSyncJobsQuery struct {
	reader SyncJobReader
}

func NewListSyncJobsQuery(reader SyncJobReader) *ListSyncJobsQuery {
	return &ListSyncJobsQuery{reader: reader}
}

func (q *ListSyncJobsQuery) Query(ctx context.Context, msg ListSyncJobsMessage) ([]core.SyncJob, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync job reader is required")
	}
	return q.reader.ListByAccount(ctx, msg.AccountID)
}

type ListAudienceHistoryQuery struct {
	reader AudienceReader
}

func NewListAudienceHistoryQuery(reader AudienceReader) *ListAudienceHistoryQuery {
	return &ListAudienceHistoryQuery{reader: reader}
}

func (q *ListAudienceHistoryQuery) Query(ctx context.Context, msg ListAudienceHistoryMessage) ([]core.AudienceSnapshot, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: audience reader is required")
	}
	return q.reader.ListByAccount(ctx, msg.AccountID)
}
