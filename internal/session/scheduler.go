package session

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/stockpanel/pkg/jwtx"
)

// Scheduler runs fn once after a delay. Scheduling again replaces the
// pending run; after Stop nothing runs any more.
type Scheduler struct {
	fn func()

	mu      sync.Mutex
	timer   *time.Timer
	due     time.Time
	stopped bool
}

func NewScheduler(fn func()) *Scheduler {
	return &Scheduler{fn: fn}
}

// Schedule (re)arms the timer for d from now.
func (s *Scheduler) Schedule(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.timer != t {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.due = time.Time{}
		s.mu.Unlock()

		s.fn()
	})
	s.timer = t
	s.due = time.Now().Add(d)
}

// Cancel drops the pending run, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.due = time.Time{}
}

// Stop cancels and refuses later Schedule calls.
func (s *Scheduler) Stop() {
	s.Cancel()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Due returns when the pending run fires.
func (s *Scheduler) Due() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.due, s.timer != nil
}

// NextCheckDelay is how long to wait before the next session check for
// token: until RefreshThreshold before its expiry, floored at
// MinCheckInterval and capped by InactivityTimeout. A token without a
// readable expiry is rechecked after RecheckInterval.
func NextCheckDelay(token string, now time.Time, cfg Config) time.Duration {
	cfg = cfg.withDefaults()

	exp, ok := jwtx.ExpiresAt(token)
	if !ok {
		return min(cfg.RecheckInterval, cfg.InactivityTimeout)
	}

	d := exp.Sub(now) - cfg.RefreshThreshold
	if d < cfg.MinCheckInterval {
		d = cfg.MinCheckInterval
	}
	if d > cfg.InactivityTimeout {
		d = cfg.InactivityTimeout
	}
	return d
}
