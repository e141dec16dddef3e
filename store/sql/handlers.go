package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func accountHandlers() repository.ModelHandlers[*linkedAccountRecord] {
	return repository.ModelHandlers[*linkedAccountRecord]{
		NewRecord: func() *linkedAccountRecord {
			return &linkedAccountRecord{}
		},
		GetID: func(record *linkedAccountRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *linkedAccountRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *linkedAccountRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func syncJobHandlers() repository.ModelHandlers[*syncJobRecord] {
	return repository.ModelHandlers[*syncJobRecord]{
		NewRecord: func() *syncJobRecord {
			return &syncJobRecord{}
		},
		GetID: func(record *syncJobRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *syncJobRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *syncJobRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func snapshotHandlers() repository.ModelHandlers[*audienceSnapshotRecord] {
	return repository.ModelHandlers[*audienceSnapshotRecord]{
		NewRecord: func() *audienceSnapshotRecord {
			return &audienceSnapshotRecord{}
		},
		GetID: func(record *audienceSnapshotRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *audienceSnapshotRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *audienceSnapshotRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
