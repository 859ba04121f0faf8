// Package scheduler drives periodic sync sessions. The timer re-arms only
// after a tick's work finishes, so a run that overshoots the interval can
// never overlap the next one.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/rwidmer/nasync/pkg/models"
)

// SessionRunner is the slice of the engine the scheduler needs.
type SessionRunner interface {
	RunAll(ctx context.Context) (*models.SessionReport, error)
}

// Scheduler fires engine runs on a fixed interval while enabled. It never
// bypasses the engine's session guard; a tick that lands during a manual
// session simply comes back skipped.
type Scheduler struct {
	engine SessionRunner
	clock  clockwork.Clock

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	nextRun  time.Time

	reconfigured chan struct{}
}

// New creates a scheduler in the disabled state; call Apply to arm it.
func New(engine SessionRunner, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		engine:       engine,
		clock:        clock,
		reconfigured: make(chan struct{}, 1),
	}
}

// Apply reconfigures the scheduler from persisted settings. Takes effect
// immediately: the current wait is abandoned and re-armed under the new
// configuration.
func (s *Scheduler) Apply(cfg *models.SchedulerConfig) {
	s.mu.Lock()
	s.enabled = cfg.Enabled && cfg.IntervalMinutes > 0
	s.interval = cfg.Interval()
	s.mu.Unlock()

	select {
	case s.reconfigured <- struct{}{}:
	default:
	}

	if cfg.Enabled {
		log.WithField("interval_minutes", cfg.IntervalMinutes).Info("scheduler enabled")
	} else {
		log.Info("scheduler disabled")
	}
}

// Status returns whether the scheduler is enabled and, if so, when the next
// tick is due. Safe to call concurrently with a running session.
func (s *Scheduler) Status() (enabled bool, nextRun *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.nextRun.IsZero() {
		return s.enabled, nil
	}
	t := s.nextRun
	return true, &t
}

// Run loops until the context is cancelled. While disabled it parks with no
// next-run time; while enabled it waits one interval, runs a session, then
// re-arms.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		enabled, interval := s.enabled, s.interval
		if enabled {
			s.nextRun = s.clock.Now().Add(interval)
		} else {
			s.nextRun = time.Time{}
		}
		s.mu.Unlock()

		var tick <-chan time.Time
		if enabled {
			tick = s.clock.After(interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.reconfigured:
			continue
		case <-tick:
			// No next-run time while the session is in flight; the loop
			// re-arms once it finishes.
			s.mu.Lock()
			s.nextRun = time.Time{}
			s.mu.Unlock()

			report, err := s.engine.RunAll(ctx)
			if err != nil {
				log.WithError(err).Warn("scheduled sync failed")
				continue
			}
			if report.Status == models.SessionSkipped {
				log.WithField("reason", report.Reason).Info("scheduled sync skipped")
			}
		}
	}
}
