package sqlstore

import (
	"time"

	"github.com/goliatone/go-approvals/core"
)

func newArtifactRecord(in core.CreateArtifactInput, id string, horizon time.Time, now time.Time) *artifactRecord {
	return &artifactRecord{
		ID:              id,
		Kind:            string(in.Kind),
		Status:          string(core.ArtifactStatusPending),
		ChannelID:       in.ChannelRef.ChannelID,
		MessageID:       in.ChannelRef.MessageID,
		ReminderCount:   0,
		Version:         1,
		RevisionHistory: []string{},
		ExpiresAt:       horizon,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func artifactToDomain(record *artifactRecord, payload *artifactPayloadRecord) core.Artifact {
	if record == nil {
		return core.Artifact{}
	}
	artifact := core.Artifact{
		ID:     record.ID,
		Kind:   core.ArtifactKind(record.Kind),
		Status: core.ArtifactStatus(record.Status),
		ChannelRef: core.ChannelRef{
			ChannelID: record.ChannelID,
			MessageID: record.MessageID,
		},
		Reviewer:        record.Reviewer,
		ReminderCount:   record.ReminderCount,
		Version:         record.Version,
		RevisionHistory: append([]string(nil), record.RevisionHistory...),
		ExpiresAt:       record.ExpiresAt,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
	if record.LastNotifiedAt != nil {
		artifact.LastNotifiedAt = *record.LastNotifiedAt
	}
	if payload != nil {
		artifact.Payload = append([]byte(nil), payload.Payload...)
	}
	return artifact
}

func applyArtifactToRecord(record *artifactRecord, next core.Artifact, now time.Time) {
	record.Kind = string(next.Kind)
	record.Status = string(next.Status)
	record.ChannelID = next.ChannelRef.ChannelID
	record.MessageID = next.ChannelRef.MessageID
	record.Reviewer = next.Reviewer
	record.ReminderCount = next.ReminderCount
	record.RevisionHistory = append([]string{}, next.RevisionHistory...)
	record.ExpiresAt = next.ExpiresAt
	if next.LastNotifiedAt.IsZero() {
		record.LastNotifiedAt = nil
	} else {
		value := next.LastNotifiedAt
		record.LastNotifiedAt = &value
	}
	record.UpdatedAt = now
}
