// Package timeout implements the per-seat single-shot action-timeout
// scheduler. It is built on github.com/coder/quartz so the default-timeout
// path (check-if-legal-else-fold) is deterministically testable with a fake
// clock, rather than the teacher's mix of raw time.Timer calls.
package timeout

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Scheduler holds exactly one pending timeout per table at a time. Arming a
// new timeout for a table cancels any prior one for that table, per spec
// §4.6. Cancellation is idempotent.
type Scheduler struct {
	clock quartz.Clock

	mu      sync.Mutex
	timers  map[string]*quartz.Timer
	tickets map[string]uint64 // monotonic ticket per table, guards stale wakeups
}

// New constructs a Scheduler backed by the real wall clock.
func New() *Scheduler {
	return NewWithClock(quartz.NewReal())
}

// NewWithClock constructs a Scheduler backed by an injected clock, for
// deterministic tests (quartz.NewMock(t)).
func NewWithClock(clock quartz.Clock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		timers:  make(map[string]*quartz.Timer),
		tickets: make(map[string]uint64),
	}
}

// Arm schedules onExpire to run after d unless cancelled first. Any
// previously pending timeout for tableID is cancelled. seat is accepted for
// symmetry with the spec's (table, current_seat) framing but the scheduler
// itself is keyed by table, since only one seat can ever be on the clock at
// once for a given table.
func (s *Scheduler) Arm(tableID string, seat int, d time.Duration, onExpire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[tableID]; ok {
		t.Stop()
	}
	s.tickets[tableID]++
	ticket := s.tickets[tableID]

	timer := s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		current := s.tickets[tableID]
		s.mu.Unlock()
		if current != ticket {
			return // superseded: the seat acted or a new timeout was armed
		}
		onExpire()
	})
	s.timers[tableID] = timer
}

// Cancel cancels any pending timeout for tableID. It is a no-op if none is
// pending, and safe to call even if the timer already fired.
func (s *Scheduler) Cancel(tableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[tableID]++
	if t, ok := s.timers[tableID]; ok {
		t.Stop()
		delete(s.timers, tableID)
	}
}
