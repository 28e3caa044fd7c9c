package core

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// Event is sent to clients to describe what happened in the system.
// Exactly one of Payload and Error is set.
type Event struct {
	Kind    proto.Kind
	Room    string
	Payload any
	Error   *CoreError
}

func errorEvent(code, msg string) *Event {
	return &Event{Error: coreError(code, msg)}
}

// Publication is an event pushed into a room by a backend service.
type Publication struct {
	Room  string          `json:"room"`
	Event proto.Kind      `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Validate checks that p names a room, a known event and carries a JSON object.
func (p Publication) Validate() error {
	if p.Room == "" {
		return fmt.Errorf("%w: room is required", ErrBadRequest)
	}
	if !proto.Known(p.Event) {
		return fmt.Errorf("%w: unknown event %q", ErrBadRequest, p.Event)
	}
	var obj map[string]any
	if err := json.Unmarshal(p.Data, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: data must be a JSON object", ErrBadRequest)
	}
	return nil
}

// Room names. Every scope lives in its own namespace.
func UserRoom(userID string) string                 { return "user:" + userID }
func BookingRoom(bookingID string) string           { return "booking:" + bookingID }
func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }
func OffersRoom(userID string) string               { return "offers:" + userID }
