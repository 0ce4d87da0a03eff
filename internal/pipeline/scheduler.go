package pipeline

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
)

const DefaultScheduleInterval = 6 * time.Hour

// Scheduler starts a full run every Interval. A tick that arrives while the
// previous scheduled run is still going is skipped.
type Scheduler struct {
	Runner   *Runner
	Interval time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup
}

func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{Runner: runner, Interval: interval}
}

// IntervalFromEnv reads SCHEDULE_INTERVAL as a Go duration. Zero disables
// scheduling; an unparsable value falls back to the default.
func IntervalFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("SCHEDULE_INTERVAL"))
	if raw == "" {
		return DefaultScheduleInterval
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.WithField("value", raw).Warn("pipeline: invalid SCHEDULE_INTERVAL, using default")
		return DefaultScheduleInterval
	}
	return d
}

// Start runs the schedule loop until ctx is cancelled. It returns at once
// when Interval is not positive.
func (s *Scheduler) Start(ctx context.Context) {
	if s.Interval <= 0 {
		log.Info("pipeline: scheduler disabled")
		return
	}
	log.WithField("interval", s.Interval.String()).Info("pipeline: scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info("pipeline: scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Wait blocks until the loop and any run it started have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// tick reports whether a run was started.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		log.Warn("pipeline: previous scheduled run still in progress, skipping tick")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		if _, err := s.Runner.Run(ctx, "schedule"); err != nil {
			log.WithError(err).Error("pipeline: scheduled run failed")
		}
	}()
	return true
}
