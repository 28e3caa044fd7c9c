package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownKind = errors.New("unknown event kind")
	ErrMalformed   = errors.New("malformed event payload")
	ErrNotEvent    = errors.New("frame is not an event")
)

// Event is a decoded and validated server event.
type Event struct {
	Kind       Kind
	Payload    Payload
	Message    string
	Timestamp  string
	ReceivedAt time.Time
}

var decoders = map[Kind]func() Payload{
	KindBookingConfirmed:    func() Payload { return &BookingStatusEvent{} },
	KindBookingAccepted:     func() Payload { return &BookingStatusEvent{} },
	KindWorkStarted:         func() Payload { return &BookingStatusEvent{} },
	KindWorkCompleted:       func() Payload { return &BookingStatusEvent{} },
	KindBookingStatusUpdate: func() Payload { return &BookingStatusEvent{} },
	KindOTPRequested:        func() Payload { return &OTPRequestEvent{} },
	KindBookingCancelled:    func() Payload { return &BookingCancelledEvent{} },

	KindNewMessage:           func() Payload { return &NewMessageEvent{} },
	KindMessageStatusChanged: func() Payload { return &MessageStatusEvent{} },
	KindUserTyping:           func() Payload { return &TypingEvent{} },
	KindUserOnlineStatus:     func() Payload { return &UserOnlineStatusEvent{} },
	KindJoinedConversation:   func() Payload { return &JoinedConversationEvent{} },

	KindNewNotification:  func() Payload { return &Notification{} },
	KindNotificationRead: func() Payload { return &NotificationReadEvent{} },
	KindNewOffer:         func() Payload { return &OfferEvent{} },
	KindOfferAccepted:    func() Payload { return &OfferEvent{} },
	KindOfferRejected:    func() Payload { return &OfferEvent{} },
	KindOfferCancelled:   func() Payload { return &OfferEvent{} },
	KindOfferRevoked:     func() Payload { return &OfferEvent{} },

	KindAuthenticated: func() Payload { return &AuthenticatedEvent{} },
	KindConnected:     func() Payload { return &ConnectedEvent{} },
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Known reports whether kind is part of the event catalog.
func Known(kind Kind) bool {
	_, ok := decoders[kind]
	return ok
}

// Decode parses an event frame into its typed payload and validates it.
func Decode(f Frame) (Event, error) {
	if f.Type != FrameTypeEvent {
		return Event{}, ErrNotEvent
	}
	kind := Kind(f.Event)
	newPayload, ok := decoders[kind]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
	}
	payload := newPayload()
	if len(f.Data) == 0 {
		return Event{}, fmt.Errorf("%w: %s: empty data", ErrMalformed, kind)
	}
	if err := json.Unmarshal(f.Data, payload); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	if err := validate.Struct(payload); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	meta := payload.EventMeta()
	return Event{
		Kind:       kind,
		Payload:    payload,
		Message:    meta.Message,
		Timestamp:  meta.Timestamp,
		ReceivedAt: time.Now(),
	}, nil
}
