package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidArtifactKind             = errors.New("core: invalid artifact kind")
	ErrInvalidArtifactStatusTransition = errors.New("core: invalid artifact status transition")
	ErrArtifactNotFound                = errors.New("core: artifact not found")
	ErrArtifactFinalized               = errors.New("core: artifact already finalized")
	ErrVersionConflict                 = errors.New("core: artifact version conflict")
)

type ArtifactKind string

const (
	ArtifactKindMinutes    ArtifactKind = "minutes"
	ArtifactKindTaskList   ArtifactKind = "task_list"
	ArtifactKindIssueDraft ArtifactKind = "issue_draft"
)

func (k ArtifactKind) Validate() error {
	switch k {
	case ArtifactKindMinutes, ArtifactKindTaskList, ArtifactKindIssueDraft:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidArtifactKind, string(k))
	}
}

type ArtifactStatus string

const (
	ArtifactStatusPending           ArtifactStatus = "pending"
	ArtifactStatusApproved          ArtifactStatus = "approved"
	ArtifactStatusRevisionRequested ArtifactStatus = "revision_requested"
	ArtifactStatusCancelled         ArtifactStatus = "cancelled"
	ArtifactStatusExpired           ArtifactStatus = "expired"
	ArtifactStatusError             ArtifactStatus = "error"
)

// Terminal reports whether no further transitions are accepted from the
// status. REVISION_REQUESTED is terminal for this record: the producer
// re-enters the flow by creating a fresh artifact version.
func (s ArtifactStatus) Terminal() bool {
	switch s {
	case ArtifactStatusApproved, ArtifactStatusCancelled, ArtifactStatusExpired,
		ArtifactStatusRevisionRequested, ArtifactStatusError:
		return true
	default:
		return false
	}
}

// ChannelRef is an opaque back-reference to the reviewer-facing message.
// The orchestrator never holds a live handle to the notification
// collaborator; all updates go through the Notifier by these ids.
type ChannelRef struct {
	ChannelID string
	MessageID string
}

func (r ChannelRef) Validate() error {
	if strings.TrimSpace(r.ChannelID) == "" {
		return fmt.Errorf("core: channel id is required")
	}
	return nil
}

// Artifact is the unit of generated content under human review. The
// orchestrator exclusively owns its state; the producer transfers
// payload ownership at creation and the commit collaborator only ever
// receives a read-only copy.
type Artifact struct {
	ID             string
	Kind           ArtifactKind
	Payload        []byte
	Status         ArtifactStatus
	ChannelRef     ChannelRef
	Reviewer       string
	ReminderCount  int
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastNotifiedAt time.Time
	ExpiresAt      time.Time

	// RevisionHistory accumulates the reviewer's revision instructions
	// across SUBMIT_REVISION_TEXT events.
	RevisionHistory []string
}

func (a *Artifact) TransitionTo(status ArtifactStatus, now time.Time) error {
	if a == nil {
		return nil
	}
	if a.Status == status {
		a.UpdatedAt = now
		return nil
	}
	if !artifactTransitionAllowed(a.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidArtifactStatusTransition, a.Status, status)
	}
	a.Status = status
	a.UpdatedAt = now
	return nil
}

func artifactTransitionAllowed(from ArtifactStatus, to ArtifactStatus) bool {
	if from == ArtifactStatusPending {
		switch to {
		case ArtifactStatusApproved, ArtifactStatusRevisionRequested,
			ArtifactStatusCancelled, ArtifactStatusExpired, ArtifactStatusError:
			return true
		}
	}
	// A side effect exhausting retries may freeze any record.
	return to == ArtifactStatusError
}

type ActionType string

const (
	ActionApprove            ActionType = "approve"
	ActionRequestRevision    ActionType = "request_revision"
	ActionCancel             ActionType = "cancel"
	ActionSubmitRevisionText ActionType = "submit_revision_text"
	ActionDeleteEntry        ActionType = "delete_entry"
	ActionAddEntry           ActionType = "add_entry"
	ActionTimeoutElapsed     ActionType = "timeout_elapsed"
)

func (t ActionType) Validate() error {
	switch t {
	case ActionApprove, ActionRequestRevision, ActionCancel,
		ActionSubmitRevisionText, ActionDeleteEntry, ActionAddEntry,
		ActionTimeoutElapsed:
		return nil
	default:
		return fmt.Errorf("core: unknown action type %q", string(t))
	}
}

// ActionEvent is one decoded reviewer (or scheduler) action. Events are
// consumed exactly once and never persisted; idempotency lives at the
// artifact version, not at the event.
type ActionEvent struct {
	ArtifactID string
	Action     ActionType
	ActorID    string
	RawText    string
	ReceivedAt time.Time
}

func (e ActionEvent) Validate() error {
	if strings.TrimSpace(e.ArtifactID) == "" {
		return fmt.Errorf("core: artifact id is required")
	}
	return e.Action.Validate()
}

type OutcomeKind string

const (
	OutcomeTransitioned     OutcomeKind = "transitioned"
	OutcomeNoop             OutcomeKind = "noop"
	OutcomeAlreadyFinalized OutcomeKind = "already_finalized"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeReminderSent     OutcomeKind = "reminder_sent"
)

// Outcome describes what a machine Apply call did, for callers that
// surface responses back to the reviewer.
type Outcome struct {
	Kind     OutcomeKind
	Status   ArtifactStatus
	Artifact Artifact
	Message  string
}

type CreateArtifactInput struct {
	ID         string
	Kind       ArtifactKind
	Payload    []byte
	ChannelRef ChannelRef

	// ExpiresAt is the review horizon. The machine fills it from its
	// resolved config; stores fall back to the package defaults when
	// it is zero.
	ExpiresAt time.Time
}

func (in CreateArtifactInput) Validate() error {
	if err := in.Kind.Validate(); err != nil {
		return err
	}
	if len(in.Payload) == 0 {
		return fmt.Errorf("core: artifact payload is required")
	}
	return in.ChannelRef.Validate()
}
