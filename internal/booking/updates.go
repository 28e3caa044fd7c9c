package booking

import (
	"context"
	"sync"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// Updates follows a single booking. It keeps its own projection, filtered by
// booking id, and holds the booking room across reconnects until stopped.
type Updates struct {
	p         *Provider
	bookingID string

	mu      sync.RWMutex
	state   State
	cancels []func()
	changes chan State
	stopped bool
}

// Track starts following bookingID.
func (p *Provider) Track(ctx context.Context, bookingID string) *Updates {
	u := &Updates{
		p:         p,
		bookingID: bookingID,
		state:     State{BookingID: bookingID},
		changes:   make(chan State, 1),
	}
	for _, kind := range proto.BookingKinds {
		u.cancels = append(u.cancels, p.router.Registry().Subscribe(kind, u.apply))
	}

	p.mu.Lock()
	p.trackers[u] = struct{}{}
	p.mu.Unlock()

	p.rooms.Join(ctx, bookingID)
	return u
}

func (u *Updates) BookingID() string { return u.bookingID }

// State returns the tracked booking's projection.
func (u *Updates) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Changes delivers the latest state after each change. Intermediate states may
// be skipped by slow readers.
func (u *Updates) Changes() <-chan State {
	return u.changes
}

// Stop leaves the booking room and detaches from the event stream.
func (u *Updates) Stop(ctx context.Context) {
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return
	}
	u.stopped = true
	cancels := u.cancels
	u.cancels = nil
	u.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	u.p.mu.Lock()
	delete(u.p.trackers, u)
	u.p.mu.Unlock()
	u.p.rooms.Leave(ctx, u.bookingID)
}

func (u *Updates) apply(ev proto.Event) {
	if bookingID(ev) != u.bookingID {
		return
	}
	u.mu.Lock()
	if u.stopped {
		u.mu.Unlock()
		return
	}
	next, changed := Transition(u.state, ev)
	if changed {
		u.state = next
	}
	u.mu.Unlock()
	if !changed {
		return
	}

	select {
	case u.changes <- next:
	default:
		select {
		case <-u.changes:
		default:
		}
		select {
		case u.changes <- next:
		default:
		}
	}
}
