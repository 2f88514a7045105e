package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func artifactHandlers() repository.ModelHandlers[*artifactRecord] {
	return repository.ModelHandlers[*artifactRecord]{
		NewRecord: func() *artifactRecord {
			return &artifactRecord{}
		},
		GetID: func(record *artifactRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *artifactRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *artifactRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func artifactPayloadHandlers() repository.ModelHandlers[*artifactPayloadRecord] {
	return repository.ModelHandlers[*artifactPayloadRecord]{
		NewRecord: func() *artifactPayloadRecord {
			return &artifactPayloadRecord{}
		},
		GetID: func(record *artifactPayloadRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ArtifactID)
		},
		SetID: func(record *artifactPayloadRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ArtifactID = id.String()
		},
		GetIdentifier: func() string {
			return "artifact_id"
		},
		GetIdentifierValue: func(record *artifactPayloadRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ArtifactID)
		},
	}
}

func ingressClaimHandlers() repository.ModelHandlers[*ingressClaimRecord] {
	return repository.ModelHandlers[*ingressClaimRecord]{
		NewRecord: func() *ingressClaimRecord {
			return &ingressClaimRecord{}
		},
		GetID: func(record *ingressClaimRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *ingressClaimRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *ingressClaimRecord) string {
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
