package booking

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/proto"
	"github.com/vovakirdan/marketsync/internal/realtime"
)

// Handlers are the consumer callbacks for booking events. Nil fields are skipped.
type Handlers struct {
	OnBookingConfirmed func(*proto.BookingStatusEvent)
	OnBookingAccepted  func(*proto.BookingStatusEvent)
	OnOTPRequested     func(*proto.OTPRequestEvent)
	OnWorkStarted      func(*proto.BookingStatusEvent)
	OnWorkCompleted    func(*proto.BookingStatusEvent)
	OnBookingCancelled func(*proto.BookingCancelledEvent)
	OnStatusUpdate     func(*proto.BookingStatusEvent)
}

func (h Handlers) set() realtime.HandlerSet {
	set := realtime.HandlerSet{}
	status := func(kind proto.Kind, fn func(*proto.BookingStatusEvent)) {
		if fn != nil {
			set[kind] = func(ev proto.Event) { fn(ev.Payload.(*proto.BookingStatusEvent)) }
		}
	}
	status(proto.KindBookingConfirmed, h.OnBookingConfirmed)
	status(proto.KindBookingAccepted, h.OnBookingAccepted)
	status(proto.KindWorkStarted, h.OnWorkStarted)
	status(proto.KindWorkCompleted, h.OnWorkCompleted)
	status(proto.KindBookingStatusUpdate, h.OnStatusUpdate)
	if fn := h.OnOTPRequested; fn != nil {
		set[proto.KindOTPRequested] = func(ev proto.Event) { fn(ev.Payload.(*proto.OTPRequestEvent)) }
	}
	if fn := h.OnBookingCancelled; fn != nil {
		set[proto.KindBookingCancelled] = func(ev proto.Event) { fn(ev.Payload.(*proto.BookingCancelledEvent)) }
	}
	return set
}

var alertTitles = map[proto.Kind][2]string{
	proto.KindBookingConfirmed: {"Booking Confirmed", "Your booking has been confirmed"},
	proto.KindBookingAccepted:  {"Booking Accepted", "Professional has accepted your booking"},
	proto.KindOTPRequested:     {"OTP Request", "Professional has arrived. Please share the OTP."},
	proto.KindWorkStarted:      {"Work Started", "Work has started on your booking"},
	proto.KindWorkCompleted:    {"Work Completed", "Work has been completed"},
	proto.KindBookingCancelled: {"Booking Cancelled", "Booking has been cancelled"},
}

func bookingAlert(ev proto.Event) *alert.Alert {
	text, ok := alertTitles[ev.Kind]
	if !ok {
		return nil
	}
	body := ev.Message
	if body == "" {
		body = text[1]
	}
	return &alert.Alert{Title: text[0], Body: body, Tag: "booking:" + bookingID(ev), Sound: true, Desktop: true}
}

// Provider keeps the booking projection in sync with the booking channel.
type Provider struct {
	conn   *realtime.Conn
	router *realtime.Router
	rooms  *realtime.Rooms
	logger zerolog.Logger

	mu       sync.RWMutex
	state    State
	finished map[string]struct{}
	trackers map[*Updates]struct{}
}

func NewProvider(opts realtime.Options, effects realtime.Effects) *Provider {
	p := &Provider{
		finished: make(map[string]struct{}),
		trackers: make(map[*Updates]struct{}),
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	if opts.Name == "" {
		opts.Name = "booking"
	}
	p.logger = base.With().Str("channel", opts.Name).Logger()

	routes := make([]realtime.Route, 0, len(proto.BookingKinds))
	for _, kind := range proto.BookingKinds {
		routes = append(routes, realtime.Route{Kind: kind, Apply: p.apply, Alert: bookingAlert})
	}
	p.router = realtime.NewRouter(opts.Logger, routes, realtime.WithEffects(effects), realtime.WithChannel(opts.Name))
	p.conn = realtime.New(opts, p.router)
	p.rooms = realtime.NewRooms(p.conn, realtime.RoomSpec{
		Name:        opts.Name,
		JoinAction:  proto.ActionJoinBookingRoom,
		LeaveAction: proto.ActionLeaveBookingRoom,
		Data:        func(id string) any { return proto.BookingRoomData{BookingID: id} },
	}, opts.Logger)
	p.conn.OnStatus(p.onStatus)
	return p
}

func (p *Provider) Start(ctx context.Context) { p.conn.Start(ctx) }

func (p *Provider) Close() error { return p.conn.Close() }

func (p *Provider) Connected() bool { return p.conn.Connected() }

// Done is closed once the connection stops trying to reconnect.
func (p *Provider) Done() <-chan struct{} { return p.conn.Done() }

func (p *Provider) WaitConnected(ctx context.Context) error { return p.conn.WaitConnected(ctx) }

// OnStatus registers a connection status observer.
func (p *Provider) OnStatus(fn func(connected bool)) { p.conn.OnStatus(fn) }

// State returns the projection of the most recently updated booking.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Provider) JoinBookingRoom(ctx context.Context, bookingID string) bool {
	return p.rooms.Join(ctx, bookingID)
}

func (p *Provider) LeaveBookingRoom(ctx context.Context, bookingID string) bool {
	return p.rooms.Leave(ctx, bookingID)
}

// ActiveBooking returns the last joined booking room.
func (p *Provider) ActiveBooking() string { return p.rooms.Active() }

// SetHandlers replaces the consumer handler set as a whole.
func (p *Provider) SetHandlers(h Handlers) {
	p.router.Registry().Swap(h.set())
}

// ClearState resets the projection to its initial state. Finished bookings
// stay finished.
func (p *Provider) ClearState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = State{}
}

// apply moves the projection. A booking that reached a terminal state stays
// there even after the projection moved on to another booking.
func (p *Provider) apply(ev proto.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := bookingID(ev)
	if _, done := p.finished[id]; done {
		p.logger.Debug().Str("kind", string(ev.Kind)).Str("booking_id", id).Msg("event for finished booking ignored")
		return
	}
	next, changed := Transition(p.state, ev)
	if !changed {
		p.logger.Debug().Str("kind", string(ev.Kind)).Str("status", string(p.state.Status)).Msg("booking event ignored")
		return
	}
	p.state = next
	if next.Terminal() {
		p.finished[next.BookingID] = struct{}{}
	}
}

func (p *Provider) onStatus(connected bool) {
	p.rooms.HandleStatus(connected)
	if !connected {
		return
	}
	p.mu.RLock()
	ids := make([]string, 0, len(p.trackers))
	for u := range p.trackers {
		ids = append(ids, u.bookingID)
	}
	p.mu.RUnlock()
	for _, id := range ids {
		p.rooms.Join(context.Background(), id)
	}
}
