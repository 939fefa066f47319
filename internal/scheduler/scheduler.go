package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/elonfeng/shelfradar/pkg/notify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec fires at midnight UTC.
const DefaultSpec = "CRON_TZ=UTC 0 0 * * *"

// Recomputer runs one popularity recompute.
type Recomputer interface {
	Recompute(ctx context.Context, windowDays int) (*catalog.ScoreRun, error)
}

// Options configures a Scheduler.
type Options struct {
	// Spec is a standard five-field cron expression, optionally prefixed
	// with CRON_TZ=. Default: DefaultSpec.
	Spec       string
	WindowDays int
	Clock      clock.Clock
	Notifier   *notify.Manager
	// SkipStartupRun disables the immediate run on StartAll from idle.
	SkipStartupRun bool
}

// Scheduler triggers the popularity scorer once at startup and then on every
// tick of its cron schedule. It is either idle (no timer) or armed (one
// timer pending). Construct exactly one per process and pass it around.
type Scheduler struct {
	scorer   Recomputer
	notifier *notify.Manager
	clock    clock.Clock
	schedule cron.Schedule
	window   int
	startup  bool
	log      zerolog.Logger

	mu    sync.Mutex
	ctx   context.Context
	timer *clock.Timer
	gen   uint64
	next  time.Time
	runs  sync.WaitGroup
}

// New creates an idle scheduler.
func New(scorer Recomputer, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	schedule, err := cron.ParseStandard(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", opts.Spec, err)
	}
	return &Scheduler{
		scorer:   scorer,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		schedule: schedule,
		window:   opts.WindowDays,
		startup:  !opts.SkipStartupRun,
		log:      logging.With().Str("component", "scheduler").Logger(),
	}, nil
}

// StartAll arms the scheduler. From idle it also starts one immediate run in
// the background unless SkipStartupRun was set. Calling it while armed replaces the pending timer, so
// timers never stack.
func (s *Scheduler) StartAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasIdle := s.timer == nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.ctx = ctx
	s.gen++
	s.armLocked(s.gen)

	if wasIdle && s.startup {
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			s.run(ctx, "startup")
		}()
	}
	s.log.Info().Time("next_run", s.next).Msg("scheduler armed")
}

// StopAll cancels the pending timer and returns to idle. Runs already in
// progress finish on their own; use Wait to block on them.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.log.Info().Msg("scheduler stopped")
	}
	s.gen++
	s.next = time.Time{}
}

// Wait blocks until in-flight runs have returned.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}

// Armed reports whether a timer is pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// NextRun returns when the pending timer fires, or the zero time when idle.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// armLocked must be called with mu held.
func (s *Scheduler) armLocked(gen uint64) {
	now := s.clock.Now().UTC()
	s.next = s.schedule.Next(now).UTC()
	s.timer = s.clock.AfterFunc(s.next.Sub(now), func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.armLocked(gen)
	ctx := s.ctx
	s.runs.Add(1)
	s.mu.Unlock()

	defer s.runs.Done()
	s.run(ctx, "scheduled")
}

// run never returns an error: failures are logged and the previous scores
// stay in place until the next successful run.
func (s *Scheduler) run(ctx context.Context, trigger string) {
	run, err := s.scorer.Recompute(ctx, s.window)
	if err != nil {
		s.log.Error().Err(err).Str("trigger", trigger).Msg("popularity recompute failed")
		return
	}

	if !s.notifier.HasNotifiers() {
		return
	}
	if err := s.notifier.Broadcast(ctx, notify.ScoresReplaced(run)); err != nil {
		s.log.Warn().Err(err).Str("run_id", run.ID).Msg("notify failed")
	}
}
