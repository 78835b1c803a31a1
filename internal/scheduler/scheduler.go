// Package scheduler runs periodic maintenance jobs with robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pesio-ai/be-doc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// DefaultSweepSchedule runs the replacement sweep right after midnight.
const DefaultSweepSchedule = "@daily"

// jobTimeout bounds a single job run.
const jobTimeout = 2 * time.Minute

// Sweeper recomputes replacement state for today.
type Sweeper interface {
	SweepReplacements(ctx context.Context) (service.SweepReport, error)
}

// Scheduler owns the cron instance and the registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	log     *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a Scheduler evaluating schedules in loc.
func New(sweeper Sweeper, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		sweeper: sweeper,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// RegisterSweep schedules the replacement sweep. An empty schedule uses
// DefaultSweepSchedule.
func (s *Scheduler) RegisterSweep(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries["replacement_sweep"]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		s.RunSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to scheduler: %w", err)
	}
	s.entries["replacement_sweep"] = id

	s.log.Info().Str("job", "replacement_sweep").Str("schedule", schedule).Msg("Job registered")
	return nil
}

// RunSweep runs the sweep once and logs the outcome.
func (s *Scheduler) RunSweep(ctx context.Context) {
	report, err := s.sweeper.SweepReplacements(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("job", "replacement_sweep").Msg("Job failed")
		return
	}
	s.log.Debug().
		Str("job", "replacement_sweep").
		Int("activated", report.Activated).
		Int("deactivated", report.Deactivated).
		Int("restored", report.Restored).
		Msg("Job finished")
}

// Start starts the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the loop and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop timed out with jobs still running")
	}
}
