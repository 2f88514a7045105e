package approvals

import (
	"fmt"
	"reflect"

	approvalscommand "github.com/goliatone/go-approvals/command"
	approvalsquery "github.com/goliatone/go-approvals/query"
	"github.com/goliatone/go-approvals/similarity"
)

type CommandQueryService interface {
	approvalscommand.ApprovalService
	approvalsquery.ArtifactReader
}

type Commands struct {
	SubmitArtifact  *approvalscommand.SubmitArtifactCommand
	Approve         *approvalscommand.ApproveCommand
	RequestRevision *approvalscommand.RequestRevisionCommand
	SubmitRevision  *approvalscommand.SubmitRevisionCommand
	Cancel          *approvalscommand.CancelCommand
	EditEntries     *approvalscommand.EditEntriesCommand
	RunSweep        *approvalscommand.RunSweepCommand
}

type Queries struct {
	GetArtifact    *approvalsquery.GetArtifactQuery
	ListPending    *approvalsquery.ListPendingQuery
	FindDuplicates *approvalsquery.FindDuplicatesQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	sweeper approvalscommand.SweepService
	finder  approvalsquery.DuplicateFinder
}

func WithSweepService(sweeper approvalscommand.SweepService) FacadeOption {
	return func(options *facadeOptions) {
		options.sweeper = sweeper
	}
}

func WithDuplicateFinder(finder approvalsquery.DuplicateFinder) FacadeOption {
	return func(options *facadeOptions) {
		options.finder = finder
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("approvals: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	sweeper := cfg.sweeper
	if sweeper == nil {
		sweeper = resolveSweepService(service)
	}
	finder := cfg.finder
	if finder == nil {
		finder = similarity.NewDetector(similarity.DefaultThreshold)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SubmitArtifact:  approvalscommand.NewSubmitArtifactCommand(service),
		Approve:         approvalscommand.NewApproveCommand(service),
		RequestRevision: approvalscommand.NewRequestRevisionCommand(service),
		SubmitRevision:  approvalscommand.NewSubmitRevisionCommand(service),
		Cancel:          approvalscommand.NewCancelCommand(service),
		EditEntries:     approvalscommand.NewEditEntriesCommand(service),
	}
	if sweeper != nil {
		facade.commands.RunSweep = approvalscommand.NewRunSweepCommand(sweeper)
	}
	facade.queries = Queries{
		GetArtifact:    approvalsquery.NewGetArtifactQuery(service),
		ListPending:    approvalsquery.NewListPendingQuery(service),
		FindDuplicates: approvalsquery.NewFindDuplicatesQuery(finder),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveSweepService discovers an optional sweep surface on the
// service without forcing every implementation to carry one. A service
// either implements SweepService directly or exposes a Sweeper()
// accessor whose result does.
func resolveSweepService(service CommandQueryService) approvalscommand.SweepService {
	if service == nil {
		return nil
	}
	if sweeper, ok := service.(approvalscommand.SweepService); ok {
		return sweeper
	}

	serviceValue := reflect.ValueOf(service)
	if !serviceValue.IsValid() {
		return nil
	}
	if serviceValue.Kind() == reflect.Ptr && serviceValue.IsNil() {
		return nil
	}
	method := serviceValue.MethodByName("Sweeper")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok {
		return nil
	}
	if len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	sweeper, ok := candidate.Interface().(approvalscommand.SweepService)
	if !ok {
		return nil
	}
	return sweeper
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
