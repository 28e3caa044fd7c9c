package booking

import (
	"time"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// State is the local projection of one booking's lifecycle.
type State struct {
	BookingID    string
	Status       proto.BookingStatus
	OTP          string
	OTPRequested bool
	UpdatedAt    time.Time
}

// Terminal reports whether no further transition is defined.
func (s State) Terminal() bool {
	return s.Status == proto.BookingCompleted || s.Status == proto.BookingCancelled
}

// bookingID extracts the booking id from any booking channel payload.
func bookingID(ev proto.Event) string {
	switch p := ev.Payload.(type) {
	case *proto.BookingStatusEvent:
		return p.BookingID
	case *proto.OTPRequestEvent:
		return p.BookingID
	case *proto.BookingCancelledEvent:
		return p.BookingID
	}
	return ""
}

// Transition applies ev to s and reports whether anything changed.
//
// Events for a booking in a terminal state are accepted and ignored. An event
// for a different booking starts a fresh projection for that booking.
func Transition(s State, ev proto.Event) (State, bool) {
	id := bookingID(ev)
	if id == "" {
		return s, false
	}
	if s.BookingID != id {
		s = State{BookingID: id}
	} else if s.Terminal() {
		return s, false
	}

	next := s
	switch ev.Kind {
	case proto.KindBookingConfirmed:
		next.Status = proto.BookingConfirmed
	case proto.KindBookingAccepted:
		next.Status = proto.BookingAccepted
	case proto.KindOTPRequested:
		next.OTP = ev.Payload.(*proto.OTPRequestEvent).OTP
		next.OTPRequested = true
	case proto.KindWorkStarted:
		next.Status = proto.BookingOngoing
		next.OTPRequested = false
	case proto.KindWorkCompleted:
		next.Status = proto.BookingCompleted
	case proto.KindBookingCancelled:
		next.Status = proto.BookingCancelled
	case proto.KindBookingStatusUpdate:
		status := ev.Payload.(*proto.BookingStatusEvent).Status
		if status == proto.BookingNone {
			return s, false
		}
		next.Status = status
	default:
		return s, false
	}
	next.UpdatedAt = ev.ReceivedAt
	return next, true
}
