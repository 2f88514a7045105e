package approvals

import (
	"context"
	"testing"
	"time"

	approvalscommand "github.com/goliatone/go-approvals/command"
	"github.com/goliatone/go-approvals/core"
	approvalsquery "github.com/goliatone/go-approvals/query"
	"github.com/goliatone/go-approvals/scheduler"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc, WithSweepService(&stubFacadeSweeper{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.SubmitArtifact == nil || commands.Approve == nil || commands.RunSweep == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetArtifact == nil || queries.ListPending == nil || queries.FindDuplicates == nil {
		t.Fatalf("expected query handlers to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().Approve.Execute(context.Background(), approvalscommand.ApproveMessage{
		ArtifactID: "art_1",
		ActorID:    "U123",
	}); err != nil {
		t.Fatalf("execute approve command: %v", err)
	}
	if svc.lastEvent.ArtifactID != "art_1" || svc.lastEvent.Action != core.ActionApprove {
		t.Fatalf("unexpected approve delegation payload: %#v", svc.lastEvent)
	}

	artifact, err := facade.Queries().GetArtifact.Query(context.Background(), approvalsquery.GetArtifactMessage{
		ArtifactID: "art_1",
	})
	if err != nil {
		t.Fatalf("query get artifact: %v", err)
	}
	if artifact.ID != "art_1" || artifact.Status != core.ArtifactStatusPending {
		t.Fatalf("unexpected artifact query result: %#v", artifact)
	}

	matches, err := facade.Queries().FindDuplicates.Query(context.Background(), approvalsquery.FindDuplicatesMessage{
		Candidate: "Fix login redirect loop",
		Existing:  []string{"Update documentation", "Fix login redirect loop"},
	})
	if err != nil {
		t.Fatalf("query find duplicates: %v", err)
	}
	if len(matches) != 1 || matches[0].Index != 1 {
		t.Fatalf("unexpected duplicate matches: %#v", matches)
	}
}

func TestNewFacade_ResolvesSweeperFromService(t *testing.T) {
	svc := &stubSweepingFacadeService{}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.Commands().RunSweep == nil {
		t.Fatalf("expected sweep command resolved from service accessor")
	}

	plain, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade without sweeper: %v", err)
	}
	if plain.Commands().RunSweep != nil {
		t.Fatalf("expected no sweep command without a sweep surface")
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

type stubFacadeService struct {
	lastEvent core.ActionEvent
}

func (s *stubFacadeService) Submit(_ context.Context, in core.CreateArtifactInput) (core.Artifact, error) {
	return core.Artifact{ID: in.ID, Kind: in.Kind, Status: core.ArtifactStatusPending}, nil
}

func (s *stubFacadeService) Apply(_ context.Context, event core.ActionEvent) (core.Outcome, error) {
	s.lastEvent = event
	return core.Outcome{Kind: core.OutcomeTransitioned, Status: core.ArtifactStatusApproved}, nil
}

func (s *stubFacadeService) Get(_ context.Context, id string) (core.Artifact, error) {
	return core.Artifact{ID: id, Status: core.ArtifactStatusPending}, nil
}

func (s *stubFacadeService) ListPending(context.Context, time.Time) ([]core.Artifact, error) {
	return []core.Artifact{{ID: "art_1", Status: core.ArtifactStatusPending}}, nil
}

type stubSweepingFacadeService struct {
	stubFacadeService
}

func (s *stubSweepingFacadeService) Sweeper() *stubFacadeSweeper {
	return &stubFacadeSweeper{}
}

type stubFacadeSweeper struct{}

func (s *stubFacadeSweeper) Tick(context.Context) (scheduler.SweepStats, error) {
	return scheduler.SweepStats{Scanned: 1}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
