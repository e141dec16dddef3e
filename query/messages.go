package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-social-connect/core"
)

const (
	TypeConnectionStatus    = "socialconnect.query.connection.status"
	TypeGetSyncJob          = "socialconnect.query.sync_job.get"
	TypeListSyncJobs        = "socialconnect.query.sync_job.list"
	TypeListAudienceHistory = "socialconnect.query.audience.history"
)

type ConnectionStatusMessage struct {
	Request core.StatusRequest
}

func (ConnectionStatusMessage) Type() string { return TypeConnectionStatus }

func (m ConnectionStatusMessage) Validate() error {
	if strings.TrimSpace(m.Request.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	if strings.TrimSpace(m.Request.Platform) == "" {
		return fmt.Errorf("query: platform is required")
	}
	return nil
}

type GetSyncJobMessage struct {
	JobID string
}

func (GetSyncJobMessage) Type() string { return TypeGetSyncJob }

func (m GetSyncJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("query: job id is required")
	}
	return nil
}

type ListSyncJobsMessage struct {
	AccountID string
}

func (ListSyncJobsMessage) Type() string { return TypeListSyncJobs }

func (m ListSyncJobsMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("query: account id is required")
	}
	return nil
}

type ListAudienceHistoryMessage struct {
	AccountID string
}

func (ListAudienceHistoryMessage) Type() string { return TypeListAudienceHistory }

func (m ListAudienceHistoryMessage) Validate() error {
	if strings.TrimSpace(m.AccountID) == "" {
		return fmt.Errorf("query: account id is required")
	}
	return nil
}
