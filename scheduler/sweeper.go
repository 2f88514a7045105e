// Package scheduler drives time-based transitions: reminder nudges for
// stale pending artifacts and expiry once the reminder budget is spent.
// The sweeper only produces timeout events; the state machine decides
// what they mean.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-approvals/core"
)

// EventApplier is the slice of the state machine the sweeper needs.
type EventApplier interface {
	Apply(ctx context.Context, event core.ActionEvent) (core.Outcome, error)
}

type SweepStats struct {
	Scanned  int
	Reminded int
	Expired  int
	Skipped  int
	Failed   int
}

type Config struct {
	// Interval is the pause between sweeps.
	Interval time.Duration
	// ReminderInterval is how stale a pending artifact must be before
	// it receives a nudge.
	ReminderInterval time.Duration
}

type Sweeper struct {
	store   core.ArtifactStore
	applier EventApplier
	logger  core.Logger
	config  Config
	now     func() time.Time
}

func NewSweeper(store core.ArtifactStore, applier EventApplier, cfg Config, logger core.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("scheduler: artifact store is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("scheduler: event applier is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = core.DefaultReminderInterval
	}
	return &Sweeper{
		store:   store,
		applier: applier,
		logger:  logger,
		config:  cfg,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithNow pins the sweeper clock. Tests use it; production leaves it.
func (s *Sweeper) WithNow(now func() time.Time) *Sweeper {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

// Run sweeps until the context ends. Sweep failures are logged and the
// loop keeps going; a broken store this tick may be healthy the next.
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("scheduler: sweeper is not configured")
	}
	for {
		stats, err := s.Tick(ctx)
		if err != nil && s.logger != nil {
			s.logger.Error("sweep failed",
				"scanned", stats.Scanned,
				"failed", stats.Failed,
				"error", err.Error(),
			)
		}
		if waitErr := waitWithContext(ctx, s.config.Interval); waitErr != nil {
			return waitErr
		}
	}
}

// Tick runs one sweep: every pending artifact whose last notification
// is older than the reminder interval gets a timeout event.
func (s *Sweeper) Tick(ctx context.Context) (SweepStats, error) {
	if s == nil {
		return SweepStats{}, fmt.Errorf("scheduler: sweeper is not configured")
	}

	now := s.now()
	cutoff := now.Add(-s.config.ReminderInterval)
	pending, err := s.store.ListPending(ctx, cutoff)
	if err != nil {
		return SweepStats{}, err
	}

	stats := SweepStats{Scanned: len(pending)}
	var sweepErr error
	for _, artifact := range pending {
		outcome, applyErr := s.applier.Apply(ctx, core.ActionEvent{
			ArtifactID: artifact.ID,
			Action:     core.ActionTimeoutElapsed,
			ReceivedAt: now,
		})
		if applyErr != nil {
			// A reviewer acting mid-sweep wins the version race;
			// that artifact simply is not stale anymore.
			if isConflict(applyErr) {
				stats.Skipped++
				continue
			}
			stats.Failed++
			sweepErr = joinErrors(sweepErr, applyErr)
			continue
		}
		switch outcome.Kind {
		case core.OutcomeReminderSent:
			stats.Reminded++
		case core.OutcomeTransitioned:
			if outcome.Status == core.ArtifactStatusExpired {
				stats.Expired++
			}
		default:
			stats.Skipped++
		}
	}
	return stats, sweepErr
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "version conflict")
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		delay = time.Minute
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
