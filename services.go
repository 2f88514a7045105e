package approvals

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-approvals/core"
	"github.com/goliatone/go-approvals/scheduler"
)

type Config = core.Config

type Option = core.Option

type Machine = core.Machine

type Artifact = core.Artifact
type ArtifactKind = core.ArtifactKind
type ArtifactStatus = core.ArtifactStatus
type ActionEvent = core.ActionEvent
type ActionType = core.ActionType
type Outcome = core.Outcome
type CreateArtifactInput = core.CreateArtifactInput

type SweepStats = scheduler.SweepStats

type ArtifactStore = core.ArtifactStore
type IdempotencyClaimStore = core.IdempotencyClaimStore
type Notifier = core.Notifier
type Committer = core.Committer
type RevisionProducer = core.RevisionProducer
type ActorAuthorizer = core.ActorAuthorizer
type BackoffScheduler = core.BackoffScheduler

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithArtifactStore    = core.WithArtifactStore
	WithNotifier         = core.WithNotifier
	WithCommitter        = core.WithCommitter
	WithRevisionProducer = core.WithRevisionProducer
	WithActorAuthorizer  = core.WithActorAuthorizer
	WithBackoffScheduler = core.WithBackoffScheduler
	WithNow              = core.WithNow
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewMachine(cfg Config, opts ...Option) (*Machine, error) {
	return core.NewMachine(cfg, opts...)
}

// Orchestrator couples the state machine with its sweeper and exposes
// the combined command/query service surface the facade consumes.
type Orchestrator struct {
	machine *core.Machine
	sweeper *scheduler.Sweeper
}

// Setup builds the machine and a sweeper over its store in one call.
// Callers that need finer control construct the pieces directly.
func Setup(cfg Config, opts ...Option) (*Orchestrator, error) {
	machine, err := core.NewMachine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	resolved := machine.Config()
	sweeper, err := scheduler.NewSweeper(machine.Store(), machine, scheduler.Config{
		Interval:         resolved.SweepInterval,
		ReminderInterval: resolved.ReminderInterval,
	}, machine.Dependencies().Logger)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{machine: machine, sweeper: sweeper}, nil
}

func (o *Orchestrator) Machine() *core.Machine {
	if o == nil {
		return nil
	}
	return o.machine
}

func (o *Orchestrator) Sweeper() *scheduler.Sweeper {
	if o == nil {
		return nil
	}
	return o.sweeper
}

func (o *Orchestrator) Submit(ctx context.Context, in core.CreateArtifactInput) (core.Artifact, error) {
	if o == nil || o.machine == nil {
		return core.Artifact{}, fmt.Errorf("approvals: orchestrator is not configured")
	}
	return o.machine.Submit(ctx, in)
}

func (o *Orchestrator) Apply(ctx context.Context, event core.ActionEvent) (core.Outcome, error) {
	if o == nil || o.machine == nil {
		return core.Outcome{}, fmt.Errorf("approvals: orchestrator is not configured")
	}
	return o.machine.Apply(ctx, event)
}

func (o *Orchestrator) Get(ctx context.Context, id string) (core.Artifact, error) {
	if o == nil || o.machine == nil {
		return core.Artifact{}, fmt.Errorf("approvals: orchestrator is not configured")
	}
	return o.machine.Store().Get(ctx, id)
}

func (o *Orchestrator) ListPending(ctx context.Context, olderThan time.Time) ([]core.Artifact, error) {
	if o == nil || o.machine == nil {
		return nil, fmt.Errorf("approvals: orchestrator is not configured")
	}
	return o.machine.Store().ListPending(ctx, olderThan)
}

func (o *Orchestrator) Tick(ctx context.Context) (scheduler.SweepStats, error) {
	if o == nil || o.sweeper == nil {
		return scheduler.SweepStats{}, fmt.Errorf("approvals: sweeper is not configured")
	}
	return o.sweeper.Tick(ctx)
}
