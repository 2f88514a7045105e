package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-approvals/core"
)

// ackBody is the non-challenge success response.
var ackBody = []byte(`{"ok":true}`)

// EventSink receives decoded action events after the delivery has been
// acknowledged. Implementations run the state machine; failures are
// theirs to retry.
type EventSink interface {
	Accept(ctx context.Context, events []core.ActionEvent) error
}

type EventSinkFunc func(ctx context.Context, events []core.ActionEvent) error

func (f EventSinkFunc) Accept(ctx context.Context, events []core.ActionEvent) error {
	return f(ctx, events)
}

// Processor is the signed ingress. Process answers within AckDeadline:
// verification and decoding happen inline, the state machine runs out
// of band through the sink.
type Processor struct {
	Verifier    Verifier
	Claims      core.IdempotencyClaimStore
	Burst       BurstController
	Sink        EventSink
	Logger      core.Logger
	AckDeadline time.Duration
	ClaimLease  time.Duration
	// Synchronous disables the detached dispatch goroutine. Used by
	// tests and by callers that already run Process on a worker.
	Synchronous bool
	Now         func() time.Time

	wg sync.WaitGroup
}

func NewProcessor(verifier Verifier, claims core.IdempotencyClaimStore, sink EventSink) *Processor {
	return &Processor{
		Verifier:    verifier,
		Claims:      claims,
		Sink:        sink,
		AckDeadline: core.DefaultAckDeadline,
		ClaimLease:  time.Minute,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Sink == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires a sink")
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return core.InboundResult{
				Accepted:   false,
				StatusCode: verificationStatus(err),
				Metadata:   map[string]any{"rejected": true},
			}, err
		}
	}

	receivedAt := p.now()
	interaction, err := DecodeInteraction(req, receivedAt)
	if err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"rejected": true},
		}, err
	}

	if interaction.Type == InteractionURLVerification {
		body, _ := json.Marshal(map[string]string{"challenge": interaction.Challenge})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Body:       body,
			Metadata:   map[string]any{"interaction": interaction.Type},
		}, nil
	}

	// Blank revision text is answered synchronously so the input
	// prompt can surface the validation error.
	if result, handled := p.rejectBlankRevision(interaction); handled {
		return result, nil
	}

	if p.Burst != nil {
		decision, burstErr := p.Burst.Allow(ctx, interaction)
		if burstErr != nil {
			return core.InboundResult{}, burstErr
		}
		if !decision.Allow {
			metadata := decision.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			metadata["interaction"] = interaction.Type
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Body:       ackBody,
				Metadata:   metadata,
			}, nil
		}
	}

	claimID := ""
	if p.Claims != nil {
		key := deliveryKey(req, interaction)
		var claimed bool
		claimID, claimed, err = p.Claims.Claim(ctx, key, p.claimLease())
		if err != nil {
			return core.InboundResult{}, err
		}
		if !claimed {
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Body:       ackBody,
				Metadata: map[string]any{
					"interaction": interaction.Type,
					"deduped":     true,
				},
			}, nil
		}
	}

	p.dispatch(ctx, claimID, interaction)

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Body:       ackBody,
		Metadata: map[string]any{
			"interaction": interaction.Type,
			"events":      len(interaction.Events),
		},
	}, nil
}

// verificationStatus distinguishes server misconfiguration (500) and
// incomplete requests (400) from authentication failures (401).
func verificationStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingSigningSecret):
		return http.StatusInternalServerError
	case errors.Is(err, ErrMissingHeader), errors.Is(err, ErrMalformedTimestamp):
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

// Wait blocks until all detached dispatches have finished.
func (p *Processor) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

func (p *Processor) dispatch(ctx context.Context, claimID string, interaction Interaction) {
	run := func(ctx context.Context) {
		err := p.Sink.Accept(ctx, interaction.Events)
		if p.Claims != nil && claimID != "" {
			if err != nil {
				_ = p.Claims.Fail(ctx, claimID, err, p.now().Add(p.claimLease()))
			} else {
				_ = p.Claims.Complete(ctx, claimID)
			}
		}
		if err != nil && p.Logger != nil {
			p.Logger.Error("interaction dispatch failed",
				"interaction", interaction.Type,
				"error", err.Error(),
			)
		}
	}

	if p.Synchronous {
		run(ctx)
		return
	}

	// The ack must not wait for the state machine; the detached
	// context survives the request lifecycle.
	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		run(detached)
	}()
}

func (p *Processor) rejectBlankRevision(interaction Interaction) (core.InboundResult, bool) {
	if interaction.Type != InteractionViewSubmission {
		return core.InboundResult{}, false
	}
	for _, event := range interaction.Events {
		if event.Action != core.ActionSubmitRevisionText {
			continue
		}
		if strings.TrimSpace(event.RawText) != "" {
			continue
		}
		body, _ := json.Marshal(map[string]any{
			"response_action": "errors",
			"errors": map[string]string{
				revisionInputPrefix + event.ArtifactID: "Revision instructions cannot be empty.",
			},
		})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Body:       body,
			Metadata: map[string]any{
				"interaction":       interaction.Type,
				"validation_failed": true,
			},
		}, true
	}
	return core.InboundResult{}, false
}

// deliveryKey prefers the platform delivery id headers and falls back
// to a body digest so retried deliveries of the same interaction share
// a claim.
func deliveryKey(req core.InboundRequest, interaction Interaction) string {
	for _, header := range []string{"X-Delivery-Id", "X-Request-Id"} {
		if value := headerValue(req.Headers, header); value != "" {
			return interaction.Type + ":" + value
		}
	}
	digest := sha256.Sum256(req.Body)
	return interaction.Type + ":" + hex.EncodeToString(digest[:16])
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return time.Minute
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}
