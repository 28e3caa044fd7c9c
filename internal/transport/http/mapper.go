package http

import (
	"encoding/json"

	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/proto"
)

const (
	errCodeInvalidMessage     = "invalid_message"
	errCodeRateLimited        = "rate_limited"
	errCodeUnsupportedVersion = "unsupported_version"
)

func actionToCommand(action proto.Action) (*core.Command, *proto.Error) {
	switch action.Type {
	case proto.ActionAuthenticate:
		var data proto.AuthenticateData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandAuthenticate, UserID: data.UserID}, nil
	case proto.ActionJoinBookingRoom, proto.ActionLeaveBookingRoom:
		var data proto.BookingRoomData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		kind := core.CommandJoinBooking
		if action.Type == proto.ActionLeaveBookingRoom {
			kind = core.CommandLeaveBooking
		}
		return &core.Command{Kind: kind, Scope: data.BookingID}, nil
	case proto.ActionJoinConversation, proto.ActionLeaveConversation:
		var data proto.ConversationData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		kind := core.CommandJoinConversation
		if action.Type == proto.ActionLeaveConversation {
			kind = core.CommandLeaveConversation
		}
		return &core.Command{Kind: kind, Scope: data.ConversationID}, nil
	case proto.ActionTyping:
		var data proto.TypingData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:     core.CommandTyping,
			Scope:    data.ConversationID,
			UserName: data.UserName,
			IsTyping: data.IsTyping,
		}, nil
	case proto.ActionMessageSeen:
		var data proto.MessageSeenData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		return &core.Command{
			Kind:      core.CommandMessageSeen,
			Scope:     data.ConversationID,
			MessageID: data.MessageID,
		}, nil
	case proto.ActionMarkRead:
		var data proto.MarkReadData
		if err := decodeData(action, &data); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandMarkRead, NotificationID: data.NotificationID}, nil
	case proto.ActionJoinOffersRoom:
		return &core.Command{Kind: core.CommandJoinOffers}, nil
	case proto.ActionLeaveOffersRoom:
		return &core.Command{Kind: core.CommandLeaveOffers}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown action type " + action.Type}
	}
}

// decodeData unmarshals action data into v. Absent data leaves v zero so the
// hub can report the missing field.
func decodeData(action proto.Action, v any) *proto.Error {
	if len(action.Data) == 0 || string(action.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(action.Data, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid data for " + action.Type}
	}
	return nil
}

func frameFromEvent(event *core.Event) (proto.Frame, error) {
	if event.Error != nil {
		return errorFrame(event.Error.Code, event.Error.Message), nil
	}
	return proto.NewEventFrame(event.Kind, event.Payload)
}

func errorFrame(code, msg string) proto.Frame {
	return proto.Frame{Type: proto.FrameTypeError, Error: &proto.Error{Code: code, Msg: msg}}
}
