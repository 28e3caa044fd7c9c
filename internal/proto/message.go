package proto

import (
	"encoding/json"
	"time"
)

// Action is the envelope for frames sent by the client.
type Action struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	ActionAuthenticate      = "authenticate"
	ActionJoinBookingRoom   = "join_booking_room"
	ActionLeaveBookingRoom  = "leave_booking_room"
	ActionJoinConversation  = "join_conversation"
	ActionLeaveConversation = "leave_conversation"
	ActionTyping            = "typing"
	ActionMessageSeen       = "message_seen"
	ActionMarkRead          = "mark_read"
	ActionJoinOffersRoom    = "join_offers_room"
	ActionLeaveOffersRoom   = "leave_offers_room"

	FrameTypeEvent = "event"
	FrameTypeError = "error"
)

// NewAction marshals data into an action envelope.
func NewAction(actionType string, data any) (Action, error) {
	if data == nil {
		return Action{Type: actionType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Action{}, err
	}
	return Action{Type: actionType, Data: raw}, nil
}

// AuthenticateData confirms the user behind the connection.
type AuthenticateData struct {
	UserID string `json:"user_id"`
}

// BookingRoomData scopes a join or leave to one booking.
type BookingRoomData struct {
	BookingID string `json:"booking_id"`
}

// ConversationData scopes a join or leave to one conversation.
type ConversationData struct {
	ConversationID string `json:"conversation_id"`
}

// TypingData announces a typing indicator change.
type TypingData struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
	UserName       string `json:"user_name,omitempty"`
}

// MessageSeenData reports that a message was displayed to the user.
type MessageSeenData struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// MarkReadData is the multi-session read signal for one notification.
type MarkReadData struct {
	NotificationID string `json:"notification_id"`
}

// Frame is the envelope for frames sent by the server.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// NewEventFrame marshals payload into an event frame.
func NewEventFrame(kind Kind, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: string(kind), Data: raw}, nil
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Msg
}

// Timestamp formats t the way the server stamps events.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
