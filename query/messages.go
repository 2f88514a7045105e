package query

import (
	"strings"
	"time"
)

const (
	TypeGetArtifact    = "approvals.query.artifact.get"
	TypeListPending    = "approvals.query.artifact.list_pending"
	TypeFindDuplicates = "approvals.query.duplicates.find"
)

type GetArtifactMessage struct {
	ArtifactID string
}

func (GetArtifactMessage) Type() string { return TypeGetArtifact }

func (m GetArtifactMessage) Validate() error {
	if strings.TrimSpace(m.ArtifactID) == "" {
		return queryValidationError("artifact_id", "artifact id is required")
	}
	return nil
}

type ListPendingMessage struct {
	OlderThan time.Time
}

func (ListPendingMessage) Type() string { return TypeListPending }

func (m ListPendingMessage) Validate() error {
	if m.OlderThan.IsZero() {
		return queryValidationError("older_than", "older_than cutoff is required")
	}
	return nil
}

// FindDuplicatesMessage asks which known titles the candidate likely
// duplicates, checked before creating a tracker entry.
type FindDuplicatesMessage struct {
	Candidate string
	Existing  []string
}

func (FindDuplicatesMessage) Type() string { return TypeFindDuplicates }

func (m FindDuplicatesMessage) Validate() error {
	if strings.TrimSpace(m.Candidate) == "" {
		return queryValidationError("candidate", "candidate title is required")
	}
	return nil
}
