package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-social-connect/core"
)

var (
	_ gocmd.Querier[ConnectionStatusMessage, core.StatusResponse]        = (*ConnectionStatusQuery)(nil)
	_ gocmd.Querier[GetSyncJobMessage, core.SyncJob]                     = (*GetSyncJobQuery)(nil)
	_ gocmd.Querier[ListSyncJobsMessage, []core.SyncJob]                 = (*ListSyncJobsQuery)(nil)
	_ gocmd.Querier[ListAudienceHistoryMessage, []core.AudienceSnapshot] = (*ListAudienceHistoryQuery)(nil)
)
