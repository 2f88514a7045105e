package webhooks

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-approvals/core"
)

const (
	InteractionURLVerification = "url_verification"
	InteractionBlockActions    = "block_actions"
	InteractionViewSubmission  = "view_submission"

	revisionModalPrefix = "feedback_modal_"
	revisionInputPrefix = "feedback_input_"
	revisionTextPrefix  = "feedback_text_"
)

// Interaction is the decoded inbound payload. Exactly one of Challenge
// or Events is meaningful, keyed by Type.
type Interaction struct {
	Type      string
	Challenge string
	ActorID   string
	Events    []core.ActionEvent
}

type interactionEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	User      struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	View struct {
		CallbackID string `json:"callback_id"`
		State      struct {
			Values map[string]map[string]struct {
				Value string `json:"value"`
			} `json:"values"`
		} `json:"state"`
	} `json:"view"`
}

// DecodeInteraction parses a verified request body. Interactive
// payloads arrive form-encoded under a payload field; event payloads
// arrive as plain JSON.
func DecodeInteraction(req core.InboundRequest, receivedAt time.Time) (Interaction, error) {
	body := req.Body
	if strings.Contains(strings.ToLower(req.ContentType), "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(req.Body))
		if err != nil {
			return Interaction{}, fmt.Errorf("webhooks: malformed form body: %w", err)
		}
		encoded := strings.TrimSpace(form.Get("payload"))
		if encoded == "" {
			return Interaction{}, fmt.Errorf("webhooks: payload field is required")
		}
		body = []byte(encoded)
	}

	var envelope interactionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Interaction{}, fmt.Errorf("webhooks: malformed interaction payload: %w", err)
	}

	interaction := Interaction{
		Type:    strings.TrimSpace(envelope.Type),
		ActorID: strings.TrimSpace(envelope.User.ID),
	}

	switch interaction.Type {
	case InteractionURLVerification:
		interaction.Challenge = strings.TrimSpace(envelope.Challenge)
		if interaction.Challenge == "" {
			return Interaction{}, fmt.Errorf("webhooks: verification challenge is required")
		}
		return interaction, nil

	case InteractionBlockActions:
		if len(envelope.Actions) == 0 {
			return Interaction{}, fmt.Errorf("webhooks: no actions in payload")
		}
		for _, action := range envelope.Actions {
			event, err := decodeBlockAction(action.ActionID, action.Value, interaction.ActorID, receivedAt)
			if err != nil {
				return Interaction{}, err
			}
			interaction.Events = append(interaction.Events, event)
		}
		return interaction, nil

	case InteractionViewSubmission:
		event, err := decodeViewSubmission(envelope, interaction.ActorID, receivedAt)
		if err != nil {
			return Interaction{}, err
		}
		interaction.Events = append(interaction.Events, event)
		return interaction, nil

	default:
		return Interaction{}, fmt.Errorf("webhooks: unsupported interaction type %q", interaction.Type)
	}
}

// decodeBlockAction splits an action id of the form
// "<action>_<artifact id>" at the first underscore after the known
// action prefix. Entry edits carry the entry reference in the button
// value.
func decodeBlockAction(actionID string, value string, actorID string, receivedAt time.Time) (core.ActionEvent, error) {
	actionID = strings.TrimSpace(actionID)

	var action core.ActionType
	var artifactID string
	for prefix, mapped := range blockActionTypes {
		if strings.HasPrefix(actionID, prefix+"_") {
			action = mapped
			artifactID = strings.TrimPrefix(actionID, prefix+"_")
			break
		}
	}
	if action == "" {
		return core.ActionEvent{}, fmt.Errorf("webhooks: unknown action id %q", actionID)
	}

	event := core.ActionEvent{
		ArtifactID: strings.TrimSpace(artifactID),
		Action:     action,
		ActorID:    actorID,
		RawText:    strings.TrimSpace(value),
		ReceivedAt: receivedAt,
	}
	if err := event.Validate(); err != nil {
		return core.ActionEvent{}, err
	}
	return event, nil
}

var blockActionTypes = map[string]core.ActionType{
	"approve":      core.ActionApprove,
	"revise":       core.ActionRequestRevision,
	"cancel":       core.ActionCancel,
	"delete_entry": core.ActionDeleteEntry,
	"add_entry":    core.ActionAddEntry,
}

func decodeViewSubmission(envelope interactionEnvelope, actorID string, receivedAt time.Time) (core.ActionEvent, error) {
	callbackID := strings.TrimSpace(envelope.View.CallbackID)
	if !strings.HasPrefix(callbackID, revisionModalPrefix) {
		return core.ActionEvent{}, fmt.Errorf("webhooks: unknown callback id %q", callbackID)
	}
	artifactID := strings.TrimPrefix(callbackID, revisionModalPrefix)

	blockID := revisionInputPrefix + artifactID
	inputID := revisionTextPrefix + artifactID
	block, ok := envelope.View.State.Values[blockID]
	if !ok {
		return core.ActionEvent{}, fmt.Errorf("webhooks: input block %q not found", blockID)
	}

	event := core.ActionEvent{
		ArtifactID: artifactID,
		Action:     core.ActionSubmitRevisionText,
		ActorID:    actorID,
		RawText:    strings.TrimSpace(block[inputID].Value),
		ReceivedAt: receivedAt,
	}
	if err := event.Validate(); err != nil {
		return core.ActionEvent{}, err
	}
	return event, nil
}
