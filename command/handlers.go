package command

import (
	"context"

	"github.com/goliatone/go-approvals/core"
	"github.com/goliatone/go-approvals/scheduler"
	gocmd "github.com/goliatone/go-command"
)

// ApprovalService is the mutating surface the commands drive. The core
// machine satisfies it.
type ApprovalService interface {
	Submit(ctx context.Context, in core.CreateArtifactInput) (core.Artifact, error)
	Apply(ctx context.Context, event core.ActionEvent) (core.Outcome, error)
}

type SweepService interface {
	Tick(ctx context.Context) (scheduler.SweepStats, error)
}

type SubmitArtifactCommand struct {
	service ApprovalService
}

func NewSubmitArtifactCommand(service ApprovalService) *SubmitArtifactCommand {
	return &SubmitArtifactCommand{service: service}
}

func (c *SubmitArtifactCommand) Execute(ctx context.Context, msg SubmitArtifactMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	out, err := c.service.Submit(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ApproveCommand struct {
	service ApprovalService
}

func NewApproveCommand(service ApprovalService) *ApproveCommand {
	return &ApproveCommand{service: service}
}

func (c *ApproveCommand) Execute(ctx context.Context, msg ApproveMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	return applyAction(ctx, c.service, core.ActionEvent{
		ArtifactID: msg.ArtifactID,
		Action:     core.ActionApprove,
		ActorID:    msg.ActorID,
	})
}

type RequestRevisionCommand struct {
	service ApprovalService
}

func NewRequestRevisionCommand(service ApprovalService) *RequestRevisionCommand {
	return &RequestRevisionCommand{service: service}
}

func (c *RequestRevisionCommand) Execute(ctx context.Context, msg RequestRevisionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	return applyAction(ctx, c.service, core.ActionEvent{
		ArtifactID: msg.ArtifactID,
		Action:     core.ActionRequestRevision,
		ActorID:    msg.ActorID,
	})
}

type SubmitRevisionCommand struct {
	service ApprovalService
}

func NewSubmitRevisionCommand(service ApprovalService) *SubmitRevisionCommand {
	return &SubmitRevisionCommand{service: service}
}

func (c *SubmitRevisionCommand) Execute(ctx context.Context, msg SubmitRevisionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	return applyAction(ctx, c.service, core.ActionEvent{
		ArtifactID: msg.ArtifactID,
		Action:     core.ActionSubmitRevisionText,
		ActorID:    msg.ActorID,
		RawText:    msg.Text,
	})
}

type CancelCommand struct {
	service ApprovalService
}

func NewCancelCommand(service ApprovalService) *CancelCommand {
	return &CancelCommand{service: service}
}

func (c *CancelCommand) Execute(ctx context.Context, msg CancelMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	return applyAction(ctx, c.service, core.ActionEvent{
		ArtifactID: msg.ArtifactID,
		Action:     core.ActionCancel,
		ActorID:    msg.ActorID,
	})
}

type EditEntriesCommand struct {
	service ApprovalService
}

func NewEditEntriesCommand(service ApprovalService) *EditEntriesCommand {
	return &EditEntriesCommand{service: service}
}

func (c *EditEntriesCommand) Execute(ctx context.Context, msg EditEntriesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: approval service is required")
	}
	return applyAction(ctx, c.service, core.ActionEvent{
		ArtifactID: msg.ArtifactID,
		Action:     msg.Action,
		ActorID:    msg.ActorID,
		RawText:    msg.Value,
	})
}

type RunSweepCommand struct {
	service SweepService
}

func NewRunSweepCommand(service SweepService) *RunSweepCommand {
	return &RunSweepCommand{service: service}
}

func (c *RunSweepCommand) Execute(ctx context.Context, _ RunSweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sweep service is required")
	}
	out, err := c.service.Tick(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func applyAction(ctx context.Context, service ApprovalService, event core.ActionEvent) error {
	out, err := service.Apply(ctx, event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
