package refresh

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultRefreshHours are the wall-clock hours at which a refresh fires.
var DefaultRefreshHours = []int{8, 12, 16, 20}

// State is the scheduler's lifecycle state.
type State string

const (
	StateIdle  State = "idle"  // no timer armed
	StateArmed State = "armed" // timer running, next fire computed
)

// Scheduler fires the refresh pipeline at fixed local hours, rearming
// itself after every fire. It performs no catch-up: fire times missed while
// the process was down are simply skipped in favor of the next future one.
type Scheduler struct {
	run   func(context.Context)
	hours []int
	log   *slog.Logger
	now   func() time.Time

	mu    sync.Mutex
	state State
	next  time.Time
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewScheduler builds a scheduler that invokes run at each of the given
// hours (defaulting to DefaultRefreshHours when empty).
func NewScheduler(run func(context.Context), hours []int, log *slog.Logger) *Scheduler {
	if len(hours) == 0 {
		hours = DefaultRefreshHours
	}
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)
	return &Scheduler{
		run:   run,
		hours: sorted,
		log:   log,
		now:   time.Now,
		state: StateIdle,
	}
}

// NextFire returns the earliest configured hour strictly after now on the
// same day, or the earliest configured hour tomorrow when today's hours
// have all passed.
func NextFire(now time.Time, hours []int) time.Time {
	var next time.Time
	earliest := hours[0]
	for _, h := range hours {
		if h < earliest {
			earliest = h
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		if candidate.After(now) && (next.IsZero() || candidate.Before(next)) {
			next = candidate
		}
	}
	if !next.IsZero() {
		return next
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), earliest, 0, 0, 0, now.Location())
}

// Start arms the scheduler. Calling Start on an armed scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state == StateArmed {
		s.mu.Unlock()
		return
	}
	s.state = StateArmed
	s.stop = make(chan struct{})
	s.next = NextFire(s.now(), s.hours)
	stop := s.stop
	s.mu.Unlock()

	s.log.Info("scheduler armed", "next_fire", s.Next())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.mu.Lock()
			wait := time.Until(s.next)
			s.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
				s.run(context.Background())
				s.mu.Lock()
				s.next = NextFire(s.now(), s.hours)
				next := s.next
				s.mu.Unlock()
				s.log.Info("scheduler rearmed", "next_fire", next)
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop disarms the scheduler and waits for the loop to exit. A refresh
// already started by a fire runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateArmed {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Next returns the computed next fire time; meaningful only when armed.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
