package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-social-connect/core"
)

type stubStatusReader struct {
	statusFn func(ctx context.Context, req core.StatusRequest) (core.StatusResponse, error)
}

func (s stubStatusReader) Status(ctx context.Context, req core.StatusRequest) (core.StatusResponse, error) {
	return s.statusFn(ctx, req)
}

func TestConnectionStatusQuery_DelegatesToReader(t *testing.T) {
	summary := core.AccountSummary{ID: "acct-1", Platform: "instagram", Username: "creator"}
	reader := stubStatusReader{
		statusFn: func(_ context.Context, req core.StatusRequest) (core.StatusResponse, error) {
			if req.UserID != "user-1" || req.Platform != "instagram" {
				t.Fatalf("unexpected status request: %#v", req)
			}
			return core.StatusResponse{Connected: true, Account: &summary}, nil
		},
	}

	q := NewConnectionStatusQuery(reader)
	out, err := q.Query(context.Background(), ConnectionStatusMessage{Request: core.StatusRequest{
		UserID:   "user-1",
		Platform: "instagram",
	}})
	if err != nil {
		t.Fatalf("query status: %v", err)
	}
	if !out.Connected || out.Account == nil || out.Account.ID != "acct-1" {
		t.Fatalf("unexpected status response: %#v", out)
	}
}

func TestSyncJobQueries_UseStoreReader(t *testing.T) {
	store := core.NewMemorySyncJobStore()
	created, err := store.Create(context.Background(), core.SyncJob{
		AccountID: "acct-1",
		Type:      core.SyncJobTypeMetrics,
		Status:    core.SyncJobStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}

	got, err := NewGetSyncJobQuery(store).Query(context.Background(), GetSyncJobMessage{JobID: created.ID})
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.AccountID != "acct-1" {
		t.Fatalf("unexpected job: %#v", got)
	}

	listed, err := NewListSyncJobsQuery(store).Query(context.Background(), ListSyncJobsMessage{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected job list: %#v", listed)
	}
}

func TestAudienceHistoryQuery_UsesStoreReader(t *testing.T) {
	store := core.NewMemorySnapshotStore()
	if _, err := store.UpsertDaily(context.Background(), core.AudienceSnapshot{
		AccountID:  "acct-1",
		MetricDate: "2026-08-29",
		Followers:  1200,
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	history, err := NewListAudienceHistoryQuery(store).Query(context.Background(), ListAudienceHistoryMessage{AccountID: "acct-1"})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 || history[0].Followers != 1200 {
		t.Fatalf("unexpected history: %#v", history)
	}
}

func TestQueries_RequireReader(t *testing.T) {
	if _, err := (&ConnectionStatusQuery{}).Query(context.Background(), ConnectionStatusMessage{}); err == nil {
		t.Fatalf("expected dependency error for missing reader")
	}
	var nilQuery *GetSyncJobQuery
	if _, err := nilQuery.Query(context.Background(), GetSyncJobMessage{JobID: "job-1"}); err == nil {
		t.Fatalf("expected dependency error for nil query")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	if err := (ConnectionStatusMessage{}).Validate(); err == nil {
		t.Fatalf("expected validation error for empty status message")
	}
	if err := (GetSyncJobMessage{JobID: " "}).Validate(); err == nil {
		t.Fatalf("expected validation error for blank job id")
	}
	if err := (ListAudienceHistoryMessage{AccountID: "acct-1"}).Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
