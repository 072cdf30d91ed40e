// Package broadcast implements the per-table fan-out of snapshots to
// subscribers, generalized from the teacher's internal/game.EventBus into
// two delivery policies over one hub (spec §4.8, design note "implement as
// two policies over the same hub, not two hubs"):
//
//   - seat subscribers: no drops, must observe every state_seq before their
//     own turn;
//   - observer subscribers: may coalesce/drop intermediate frames, but never
//     terminal ones (HAND_COMPLETE, SHOWDOWN).
package broadcast

import (
	"sync"

	"github.com/lox/moltpoker/internal/runtime"
)

const subscriberQueueDepth = 32

// ErrSlowConsumer is the error code a subscriber is disconnected with when
// its delivery queue is exceeded, per spec §4.8.
const ErrSlowConsumer = "SLOW_CONSUMER"

// Subscriber is a destination for snapshots: a websocket connection's
// outbound loop reads from C until Closed fires.
type Subscriber struct {
	C      chan runtime.Snapshot
	Closed chan string // receives the disconnect error code, then closes

	seatPolicy bool // true = seat subscriber (no drops), false = observer (coalescing)
	pending    *runtime.Snapshot
}

func newSubscriber(seatPolicy bool) *Subscriber {
	return &Subscriber{
		C:          make(chan runtime.Snapshot, subscriberQueueDepth),
		Closed:     make(chan string, 1),
		seatPolicy: seatPolicy,
	}
}

func isTerminal(s runtime.Snapshot) bool {
	return s.Phase == runtime.Complete || s.Phase == runtime.Showdown
}

// deliver attempts non-blocking delivery per the hub's two policies.
func (s *Subscriber) deliver(snap runtime.Snapshot) {
	select {
	case s.C <- snap:
		return
	default:
	}

	if s.seatPolicy {
		// Seat subscribers must not drop anything; a full queue here means
		// the connection's writer is stuck, which the hub treats as slow.
		select {
		case s.Closed <- ErrSlowConsumer:
		default:
		}
		return
	}

	if isTerminal(snap) {
		// Never drop a terminal frame for an observer: force it through by
		// discarding the oldest queued frame first.
		select {
		case <-s.C:
		default:
		}
		select {
		case s.C <- snap:
		default:
			select {
			case s.Closed <- ErrSlowConsumer:
			default:
			}
		}
		return
	}

	// Observer, non-terminal, queue full: coalesce by dropping the oldest.
	select {
	case <-s.C:
	default:
	}
	select {
	case s.C <- snap:
	default:
	}
}

// Hub fans out snapshots for a single table to its subscribers. The
// subscriber sets are mutated from per-connection goroutines (subscribe on
// accept, unsubscribe on disconnect) while Publish is called from the
// table's single actor goroutine, so access is guarded by mu.
type Hub struct {
	mu        sync.Mutex
	seats     map[int]*Subscriber
	observers map[*Subscriber]bool
}

// New constructs an empty Hub for one table.
func New() *Hub {
	return &Hub{
		seats:     make(map[int]*Subscriber),
		observers: make(map[*Subscriber]bool),
	}
}

// SubscribeSeat registers (or replaces) the subscriber for a seat.
func (h *Hub) SubscribeSeat(seatID int) *Subscriber {
	sub := newSubscriber(true)
	h.mu.Lock()
	h.seats[seatID] = sub
	h.mu.Unlock()
	return sub
}

// SubscribeObserver registers a new observer subscriber.
func (h *Hub) SubscribeObserver() *Subscriber {
	sub := newSubscriber(false)
	h.mu.Lock()
	h.observers[sub] = true
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber from either set.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for seatID, s := range h.seats {
		if s == sub {
			delete(h.seats, seatID)
		}
	}
	delete(h.observers, sub)
}

// Publish implements runtime.Publisher: it routes a snapshot to the matching
// seat subscriber (Seat >= 0) or to every observer (Seat == -1), in the order
// produced, without blocking the caller (the table's actor loop).
func (h *Hub) Publish(snap runtime.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if snap.Seat >= 0 {
		if sub, ok := h.seats[snap.Seat]; ok {
			sub.deliver(snap)
		}
		return
	}
	for sub := range h.observers {
		sub.deliver(snap)
	}
}
