package escalation

import (
	"sync"
	"time"
)

// FireFunc is invoked when a scheduled check comes due. It receives only
// the alert id and must re-read current state before acting.
type FireFunc func(alertID int64)

// Scheduler keeps at most one pending timer per alert.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[int64]*time.Timer
	fire    FireFunc
	stopped bool
}

func NewScheduler(fire FireFunc) *Scheduler {
	return &Scheduler{
		timers: make(map[int64]*time.Timer),
		fire:   fire,
	}
}

// Schedule replaces any pending check for alertID.
func (s *Scheduler) Schedule(alertID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[alertID]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.timers[alertID]
		if !ok || current != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, alertID)
		s.mu.Unlock()

		s.fire(alertID)
	})
	s.timers[alertID] = timer
}

func (s *Scheduler) Cancel(alertID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[alertID]; ok {
		t.Stop()
		delete(s.timers, alertID)
	}
}

// Stop cancels every pending check and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
