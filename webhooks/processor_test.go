package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-approvals/core"
)

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.ActionEvent
	err    error
}

func (s *recordingSink) Accept(_ context.Context, events []core.ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func blockActionBody(actionID string, value string) []byte {
	payload := fmt.Sprintf(`{
		"type": "block_actions",
		"user": {"id": "U1"},
		"channel": {"id": "C1"},
		"actions": [{"action_id": %q, "value": %q}]
	}`, actionID, value)
	return []byte("payload=" + url.QueryEscape(payload))
}

func newTestProcessor(sink EventSink) *Processor {
	processor := NewProcessor(stubVerifier{}, NewInMemoryClaimStore(), sink)
	processor.Synchronous = true
	return processor
}

func TestProcessor_EchoesVerificationChallenge(t *testing.T) {
	sink := &recordingSink{}
	processor := newTestProcessor(sink)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body:        []byte(`{"type":"url_verification","challenge":"abc123"}`),
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}

	var echo map[string]string
	if err := json.Unmarshal(result.Body, &echo); err != nil {
		t.Fatalf("decode challenge response: %v", err)
	}
	if echo["challenge"] != "abc123" {
		t.Fatalf("expected challenge echoed, got %q", echo["challenge"])
	}
	if sink.count() != 0 {
		t.Fatalf("verification must not reach the sink")
	}
}

func TestProcessor_RejectsUnverifiedRequest(t *testing.T) {
	sink := &recordingSink{}
	processor := newTestProcessor(sink)
	processor.Verifier = stubVerifier{err: ErrSignatureMismatch}

	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body: blockActionBody("approve_art-1", ""),
	})
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
	if sink.count() != 0 {
		t.Fatalf("rejected request must not reach the sink")
	}
}

func TestProcessor_VerificationFailureStatusClasses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing secret is a server fault", ErrMissingSigningSecret, http.StatusInternalServerError},
		{"missing header is a bad request", fmt.Errorf("%w: X-Signature-Timestamp", ErrMissingHeader), http.StatusBadRequest},
		{"malformed timestamp is a bad request", ErrMalformedTimestamp, http.StatusBadRequest},
		{"expired timestamp is unauthorized", ErrTimestampExpired, http.StatusUnauthorized},
		{"signature mismatch is unauthorized", ErrSignatureMismatch, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			processor := newTestProcessor(&recordingSink{})
			processor.Verifier = stubVerifier{err: tc.err}

			result, err := processor.Process(context.Background(), core.InboundRequest{
				Body: blockActionBody("approve_art-1", ""),
			})
			if err == nil {
				t.Fatalf("expected verification error")
			}
			if result.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, result.StatusCode)
			}
		})
	}
}

func TestProcessor_UnconfiguredSecretIs500(t *testing.T) {
	processor := newTestProcessor(&recordingSink{})
	processor.Verifier = SignatureVerifier{}

	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body: blockActionBody("approve_art-1", ""),
	})
	if !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got: %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", result.StatusCode)
	}
}

func TestProcessor_MalformedPayloadIs400(t *testing.T) {
	processor := newTestProcessor(&recordingSink{})

	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body: []byte("this is not json"),
	})
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", result.StatusCode)
	}
}

func TestProcessor_DispatchesBlockActions(t *testing.T) {
	sink := &recordingSink{}
	processor := newTestProcessor(sink)

	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body:        blockActionBody("approve_art-1", ""),
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected accepted 200 ack")
	}
	var ack map[string]bool
	if err := json.Unmarshal(result.Body, &ack); err != nil || !ack["ok"] {
		t.Fatalf("expected {\"ok\":true} ack body, got %q", result.Body)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one dispatched event, got %d", sink.count())
	}
	event := sink.events[0]
	if event.Action != core.ActionApprove || event.ArtifactID != "art-1" || event.ActorID != "U1" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestProcessor_DedupesRepeatedDeliveries(t *testing.T) {
	sink := &recordingSink{}
	processor := newTestProcessor(sink)

	req := core.InboundRequest{
		Body:        blockActionBody("approve_art-1", ""),
		ContentType: "application/x-www-form-urlencoded",
		Headers:     map[string]string{"X-Delivery-Id": "d-1"},
	}

	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped marker, got %+v", second.Metadata)
	}
	if sink.count() != 1 {
		t.Fatalf("duplicate must not reach the sink twice, got %d", sink.count())
	}
}

func TestProcessor_FailedDispatchBecomesClaimableAgain(t *testing.T) {
	sink := &recordingSink{err: errors.New("store unavailable")}
	claims := NewInMemoryClaimStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claims.Now = func() time.Time { return current }

	processor := NewProcessor(stubVerifier{}, claims, sink)
	processor.Synchronous = true
	processor.ClaimLease = time.Minute
	processor.Now = func() time.Time { return current }

	req := core.InboundRequest{
		Body:        blockActionBody("approve_art-1", ""),
		ContentType: "application/x-www-form-urlencoded",
		Headers:     map[string]string{"X-Delivery-Id": "d-1"},
	}
	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// After the retry delay elapses, a platform redelivery is accepted
	// again instead of deduped.
	current = current.Add(2 * time.Minute)
	sink.err = nil
	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected redelivery to reach the sink, got %d", sink.count())
	}
}

func TestProcessor_BlankRevisionTextAnsweredSynchronously(t *testing.T) {
	sink := &recordingSink{}
	processor := newTestProcessor(sink)

	payload := `{
		"type": "view_submission",
		"user": {"id": "U1"},
		"view": {
			"callback_id": "feedback_modal_art-1",
			"state": {"values": {"feedback_input_art-1": {"feedback_text_art-1": {"value": "   "}}}}
		}
	}`
	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body:        []byte("payload=" + url.QueryEscape(payload)),
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result.Metadata["validation_failed"] != true {
		t.Fatalf("expected validation_failed metadata, got %+v", result.Metadata)
	}

	var body map[string]any
	if err := json.Unmarshal(result.Body, &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["response_action"] != "errors" {
		t.Fatalf("expected errors response action, got %v", body["response_action"])
	}
	if sink.count() != 0 {
		t.Fatalf("blank revision must not reach the sink")
	}
}

func TestProcessor_BurstCoalescesDoubleClicks(t *testing.T) {
	sink := &recordingSink{}
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processor := newTestProcessor(sink)
	processor.Claims = nil
	processor.Burst = NewBurstController(BurstOptions{
		Mode:   BurstModeCoalesce,
		Window: 2 * time.Second,
		Now:    func() time.Time { return current },
	})

	req := core.InboundRequest{
		Body:        blockActionBody("approve_art-1", ""),
		ContentType: "application/x-www-form-urlencoded",
	}
	if _, err := processor.Process(context.Background(), req); err != nil {
		t.Fatalf("first click failed: %v", err)
	}

	current = current.Add(200 * time.Millisecond)
	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("second click failed: %v", err)
	}
	if result.Metadata["coalesced"] != true {
		t.Fatalf("expected coalesced marker, got %+v", result.Metadata)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one dispatch, got %d", sink.count())
	}
}
