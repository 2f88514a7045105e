package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// reviewPayload is the portion of the opaque payload the orchestrator
// understands well enough to render and edit. Everything else passes
// through untouched.
type reviewPayload struct {
	Title   string          `json:"title,omitempty"`
	Body    string          `json:"body,omitempty"`
	Entries []json.RawMessage `json:"entries,omitempty"`
}

func renderReviewMessage(artifact Artifact) string {
	var builder strings.Builder
	switch artifact.Kind {
	case ArtifactKindMinutes:
		builder.WriteString("Meeting minutes ready for review.")
	case ArtifactKindTaskList:
		builder.WriteString("Task list ready for review.")
	case ArtifactKindIssueDraft:
		builder.WriteString("Issue draft ready for review.")
	default:
		builder.WriteString("Content ready for review.")
	}

	var payload reviewPayload
	if err := json.Unmarshal(artifact.Payload, &payload); err == nil {
		if title := strings.TrimSpace(payload.Title); title != "" {
			builder.WriteString("\n*")
			builder.WriteString(title)
			builder.WriteString("*")
		}
		if body := strings.TrimSpace(payload.Body); body != "" {
			builder.WriteString("\n")
			builder.WriteString(body)
		}
		for i, raw := range payload.Entries {
			builder.WriteString(fmt.Sprintf("\n%d. %s", i+1, renderEntry(raw)))
		}
	}

	builder.WriteString("\nApprove, request a revision, or cancel.")
	return builder.String()
}

func renderReminderMessage(artifact Artifact, maxReminders int) string {
	remaining := maxReminders - artifact.ReminderCount
	if remaining <= 0 {
		return "Last call: this review request expires soon."
	}
	return fmt.Sprintf("Still waiting on a review decision (%d reminder(s) left before this expires).", remaining)
}

func renderEntry(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err == nil {
		if description, ok := entry["description"].(string); ok && strings.TrimSpace(description) != "" {
			return description
		}
		if title, ok := entry["title"].(string); ok && strings.TrimSpace(title) != "" {
			return title
		}
	}
	return string(raw)
}

// editPayloadEntries applies a reviewer-driven entry edit to a task
// list style payload. Deletes address entries by their 1-based display
// index; adds append the raw text as a new entry.
func editPayloadEntries(payload []byte, rawText string, add bool) ([]byte, error) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("core: payload does not support entry edits")
	}

	var entries []json.RawMessage
	if raw, ok := decoded["entries"]; ok {
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("core: payload entries are malformed")
		}
	}

	if add {
		text := strings.TrimSpace(rawText)
		if text == "" {
			return nil, fmt.Errorf("core: new entry text is required")
		}
		encoded, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		entries = append(entries, encoded)
	} else {
		index, err := strconv.Atoi(strings.TrimSpace(rawText))
		if err != nil || index < 1 || index > len(entries) {
			return nil, fmt.Errorf("core: entry %q does not exist", strings.TrimSpace(rawText))
		}
		entries = append(entries[:index-1], entries[index:]...)
	}

	encodedEntries, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	decoded["entries"] = encodedEntries
	return json.Marshal(decoded)
}
