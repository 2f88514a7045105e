package inbound

import (
	"context"

	"github.com/goliatone/go-approvals/core"
)

// ApprovalMachine is the slice of the state machine handlers need.
type ApprovalMachine interface {
	Apply(ctx context.Context, event core.ActionEvent) (core.Outcome, error)
}

// MachineHandler adapts the state machine to one inbound surface.
type MachineHandler struct {
	surface string
	machine ApprovalMachine
}

var _ core.InboundHandler = (*MachineHandler)(nil)

func NewMachineHandler(surface string, machine ApprovalMachine) *MachineHandler {
	return &MachineHandler{
		surface: normalizeSurface(surface),
		machine: machine,
	}
}

func (h *MachineHandler) Surface() string {
	if h == nil {
		return ""
	}
	return h.surface
}

func (h *MachineHandler) Handle(ctx context.Context, event core.ActionEvent) (core.Outcome, error) {
	if h == nil || h.machine == nil {
		return core.Outcome{}, inboundInternal("inbound: machine handler is not configured", nil)
	}
	return h.machine.Apply(ctx, event)
}

// RegisterMachineHandlers wires every supported surface to the machine.
func RegisterMachineHandlers(dispatcher *Dispatcher, machine ApprovalMachine) error {
	if dispatcher == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	for _, surface := range []string{SurfaceInteraction, SurfaceViewSubmission, SurfaceTimeout} {
		if err := dispatcher.Register(NewMachineHandler(surface, machine)); err != nil {
			return err
		}
	}
	return nil
}
