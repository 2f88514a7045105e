package command

import (
	"strings"

	"github.com/goliatone/go-approvals/core"
)

const (
	TypeSubmitArtifact  = "approvals.command.artifact.submit"
	TypeApprove         = "approvals.command.artifact.approve"
	TypeRequestRevision = "approvals.command.artifact.request_revision"
	TypeSubmitRevision  = "approvals.command.artifact.submit_revision"
	TypeCancel          = "approvals.command.artifact.cancel"
	TypeEditEntries     = "approvals.command.artifact.edit_entries"
	TypeRunSweep        = "approvals.command.scheduler.sweep"
)

type SubmitArtifactMessage struct {
	Input core.CreateArtifactInput
}

func (SubmitArtifactMessage) Type() string { return TypeSubmitArtifact }

func (m SubmitArtifactMessage) Validate() error {
	if err := m.Input.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid artifact input")
	}
	return nil
}

type ApproveMessage struct {
	ArtifactID string
	ActorID    string
}

func (ApproveMessage) Type() string { return TypeApprove }

func (m ApproveMessage) Validate() error {
	return validateActor(m.ArtifactID, m.ActorID)
}

type RequestRevisionMessage struct {
	ArtifactID string
	ActorID    string
}

func (RequestRevisionMessage) Type() string { return TypeRequestRevision }

func (m RequestRevisionMessage) Validate() error {
	return validateActor(m.ArtifactID, m.ActorID)
}

type SubmitRevisionMessage struct {
	ArtifactID string
	ActorID    string
	Text       string
}

func (SubmitRevisionMessage) Type() string { return TypeSubmitRevision }

func (m SubmitRevisionMessage) Validate() error {
	if err := validateActor(m.ArtifactID, m.ActorID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Text) == "" {
		return commandValidationError("text", "revision instructions are required")
	}
	return nil
}

type CancelMessage struct {
	ArtifactID string
	ActorID    string
}

func (CancelMessage) Type() string { return TypeCancel }

func (m CancelMessage) Validate() error {
	return validateActor(m.ArtifactID, m.ActorID)
}

// EditEntriesMessage adds or removes a single payload entry while the
// artifact is still pending. Delete carries a 1-based index in Value;
// Add carries the entry text.
type EditEntriesMessage struct {
	ArtifactID string
	ActorID    string
	Action     core.ActionType
	Value      string
}

func (EditEntriesMessage) Type() string { return TypeEditEntries }

func (m EditEntriesMessage) Validate() error {
	if err := validateActor(m.ArtifactID, m.ActorID); err != nil {
		return err
	}
	if m.Action != core.ActionDeleteEntry && m.Action != core.ActionAddEntry {
		return commandValidationError("action", "action must be delete_entry or add_entry")
	}
	if strings.TrimSpace(m.Value) == "" {
		return commandValidationError("value", "entry value is required")
	}
	return nil
}

type RunSweepMessage struct{}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (RunSweepMessage) Validate() error { return nil }

func validateActor(artifactID, actorID string) error {
	if strings.TrimSpace(artifactID) == "" {
		return commandValidationError("artifact_id", "artifact id is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return commandValidationError("actor_id", "actor id is required")
	}
	return nil
}
