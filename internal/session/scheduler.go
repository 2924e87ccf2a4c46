package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rentops/rentops/internal/observability"
)

// Scheduler drives background revalidation for one store. It is armed only
// while a role-bound session is active: re-armed on login, disarmed on
// logout. One timer per session, tied to the session's lifetime rather than
// to any caller's.
type Scheduler struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu   sync.Mutex
	stop chan struct{}
}

// NewScheduler constructs a Scheduler and registers it as the store's
// lifecycle listener. Metrics may be nil.
func NewScheduler(store *Store, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 4 * time.Minute
	}
	s := &Scheduler{store: store, interval: interval, logger: logger, metrics: metrics}
	store.SetListener(s)
	return s
}

// SessionStarted arms the timer for role-bound sessions. Owner sessions are
// not subject to revalidation, so a login as owner disarms instead.
func (s *Scheduler) SessionStarted(kind Kind) {
	if kind == KindRoleBound {
		s.arm()
		return
	}
	s.disarm()
}

// SessionEnded disarms the timer.
func (s *Scheduler) SessionEnded() {
	s.disarm()
}

// Stop disarms the timer during shutdown.
func (s *Scheduler) Stop() {
	s.disarm()
}

func (s *Scheduler) arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	go s.run(stop)
}

func (s *Scheduler) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Scheduler) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := s.store.Revalidate(context.Background())
			switch {
			case err == nil:
				s.metrics.Revalidation("success")
			case errors.Is(err, ErrRevalidationInFlight):
				s.metrics.Revalidation("skipped")
				s.logger.Debug("revalidation tick skipped, prior call in flight")
			case errors.Is(err, ErrNoSession), errors.Is(err, ErrRevalidationUnavailable):
				// Session went away or cannot revalidate; the next lifecycle
				// event will disarm us.
			default:
				s.metrics.Revalidation("failure")
				s.logger.Warn("background revalidation", slog.Any("error", err))
			}
		}
	}
}
