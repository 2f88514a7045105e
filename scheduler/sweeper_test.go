package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-approvals/core"
)

type silentNotifier struct{}

func (silentNotifier) SendMessage(context.Context, core.ChannelRef, string) (core.MessageRef, error) {
	return core.MessageRef{ChannelID: "C1", MessageID: "m1"}, nil
}

func (silentNotifier) UpdateMessage(context.Context, core.MessageRef, string) error {
	return nil
}

func (silentNotifier) OpenRevisionPrompt(context.Context, core.ChannelRef, string) error {
	return nil
}

func newSweepFixture(t *testing.T) (*core.Machine, core.ArtifactStore, *Sweeper, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	store := core.NewMemoryArtifactStore(func() time.Time { return current })
	machine, err := core.NewMachine(core.Config{},
		core.WithArtifactStore(store),
		core.WithNotifier(silentNotifier{}),
		core.WithNow(func() time.Time { return current }),
	)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}

	sweeper, err := NewSweeper(store, machine, Config{
		Interval:         time.Minute,
		ReminderInterval: 24 * time.Hour,
	}, nil)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	sweeper.WithNow(func() time.Time { return current })
	return machine, store, sweeper, &current
}

func TestSweeper_FreshArtifactIsLeftAlone(t *testing.T) {
	machine, _, sweeper, _ := newSweepFixture(t)
	if _, err := machine.Submit(context.Background(), core.CreateArtifactInput{
		Kind:       core.ArtifactKindMinutes,
		Payload:    []byte(`{"title":"retro"}`),
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	stats, err := sweeper.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("fresh artifact must not be swept, scanned %d", stats.Scanned)
	}
}

func TestSweeper_RemindsThenExpires(t *testing.T) {
	machine, store, sweeper, current := newSweepFixture(t)
	artifact, err := machine.Submit(context.Background(), core.CreateArtifactInput{
		Kind:       core.ArtifactKindTaskList,
		Payload:    []byte(`{"entries":["a"]}`),
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Three stale sweeps send the three reminders.
	for i := 1; i <= 3; i++ {
		*current = current.Add(25 * time.Hour)
		stats, err := sweeper.Tick(context.Background())
		if err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		if stats.Reminded != 1 {
			t.Fatalf("sweep %d: expected one reminder, got %+v", i, stats)
		}
	}

	// The fourth stale sweep finds the reminder budget spent.
	*current = current.Add(25 * time.Hour)
	stats, err := sweeper.Tick(context.Background())
	if err != nil {
		t.Fatalf("expiry sweep: %v", err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected expiry, got %+v", stats)
	}

	stored, err := store.Get(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != core.ArtifactStatusExpired {
		t.Fatalf("expected expired, got %q", stored.Status)
	}

	// Terminal artifacts drop out of later sweeps entirely.
	*current = current.Add(25 * time.Hour)
	stats, err = sweeper.Tick(context.Background())
	if err != nil {
		t.Fatalf("post-expiry sweep: %v", err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("expired artifact must not be scanned, got %+v", stats)
	}
}

func TestSweeper_ReviewerDecisionWinsMidSweep(t *testing.T) {
	machine, _, sweeper, current := newSweepFixture(t)
	artifact, err := machine.Submit(context.Background(), core.CreateArtifactInput{
		Kind:       core.ArtifactKindIssueDraft,
		Payload:    []byte(`{"title":"bug"}`),
		ChannelRef: core.ChannelRef{ChannelID: "C1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	*current = current.Add(25 * time.Hour)
	if _, err := machine.Apply(context.Background(), core.ActionEvent{
		ArtifactID: artifact.ID, Action: core.ActionCancel, ActorID: "U1",
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := sweeper.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Reminded != 0 || stats.Expired != 0 {
		t.Fatalf("cancelled artifact must not transition, got %+v", stats)
	}
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	_, _, sweeper, _ := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- sweeper.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context cancellation, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
