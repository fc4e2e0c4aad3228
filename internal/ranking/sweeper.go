package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jonathan/talent-match/internal/logger"
)

// DefaultSweepSchedule runs the stale sweep every five minutes.
const DefaultSweepSchedule = "@every 5m"

// Sweeper periodically recomputes stale match records in the background.
type Sweeper struct {
	coordinator *Coordinator
	cron        *cron.Cron
	batch       int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewSweeper schedules RecomputeStale on the given cron schedule. Runs never
// overlap; a tick that fires while a sweep is still running is skipped.
func NewSweeper(c *Coordinator, schedule string, batch int, timeout time.Duration, log *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	s := &Sweeper{
		coordinator: c,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		batch:       batch,
		timeout:     timeout,
		logger:      logger.Named(log, "sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("stale sweep started", zap.Int("batch", s.batch))
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.coordinator.RecomputeStale(ctx, s.batch)
}

func (s *Sweeper) sweep() {
	result, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.Error("stale sweep failed", zap.Error(err))
		return
	}
	if result == (SweepResult{}) {
		return
	}
	s.logger.Info("stale sweep finished",
		zap.Int("refreshed", result.Refreshed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
}
