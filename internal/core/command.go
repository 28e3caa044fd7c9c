package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds the session to its user room.
	CommandAuthenticate CommandKind = iota
	CommandJoinBooking
	CommandLeaveBooking
	// CommandJoinConversation subscribes to a conversation and is acknowledged
	// with joined_conversation.
	CommandJoinConversation
	CommandLeaveConversation
	// CommandTyping relays a typing indicator to the other participants.
	CommandTyping
	// CommandMessageSeen marks a message seen for the whole conversation.
	CommandMessageSeen
	// CommandMarkRead persists a read notification and tells every session of the user.
	CommandMarkRead
	CommandJoinOffers
	CommandLeaveOffers
)

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	UserID         string
	Scope          string // booking or conversation id
	UserName       string
	IsTyping       bool
	MessageID      string
	NotificationID string
}
