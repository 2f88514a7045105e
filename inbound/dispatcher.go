package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-approvals/core"
)

const (
	SurfaceInteraction    = "interaction"
	SurfaceViewSubmission = "view_submission"
	SurfaceTimeout        = "timeout"
)

// Dispatcher routes one decoded action event to the handler registered
// for its surface.
type Dispatcher struct {
	Logger core.Logger

	mu       sync.RWMutex
	handlers map[string]core.InboundHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[string]core.InboundHandler{},
	}
}

func (d *Dispatcher) Register(handler core.InboundHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	surface := normalizeSurface(handler.Surface())
	if !isSupportedSurface(surface) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported surface %q", surface),
			map[string]any{"surface": surface},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[surface]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for surface %q", surface),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ApprovalErrorVersionConflict,
			map[string]any{"surface": surface},
		)
	}
	d.handlers[surface] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, event core.ActionEvent) (core.Outcome, error) {
	if d == nil {
		return core.Outcome{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	if err := event.Validate(); err != nil {
		return core.Outcome{}, inboundWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: invalid action event",
			http.StatusBadRequest,
			core.ApprovalErrorMalformedRequest,
			map[string]any{"action": string(event.Action)},
		)
	}

	surface := SurfaceFor(event.Action)
	handler := d.handlerFor(surface)
	if handler == nil {
		return core.Outcome{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for surface %q", surface),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.ApprovalErrorNotFound,
			map[string]any{"surface": surface, "action": string(event.Action)},
		)
	}

	outcome, err := handler.Handle(ctx, event)
	if err != nil {
		return core.Outcome{}, inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: handler execution failed",
			http.StatusBadGateway,
			core.ApprovalErrorExternalTransient,
			map[string]any{"surface": surface, "artifact_id": event.ArtifactID},
		)
	}
	return outcome, nil
}

// Accept satisfies the webhook processor's sink contract: a batch of
// events from one delivery runs in order, and the first failure aborts
// the batch so the ingress claim can be retried.
func (d *Dispatcher) Accept(ctx context.Context, events []core.ActionEvent) error {
	var errs []error
	for _, event := range events {
		if _, err := d.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}

// SurfaceFor maps an action to the surface its handler registers under.
func SurfaceFor(action core.ActionType) string {
	switch action {
	case core.ActionSubmitRevisionText:
		return SurfaceViewSubmission
	case core.ActionTimeoutElapsed:
		return SurfaceTimeout
	default:
		return SurfaceInteraction
	}
}

func (d *Dispatcher) handlerFor(surface string) core.InboundHandler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeSurface(surface)]
}

func normalizeSurface(surface string) string {
	return strings.TrimSpace(strings.ToLower(surface))
}

func isSupportedSurface(surface string) bool {
	switch normalizeSurface(surface) {
	case SurfaceInteraction, SurfaceViewSubmission, SurfaceTimeout:
		return true
	default:
		return false
	}
}
