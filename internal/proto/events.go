package proto

import "encoding/json"

// Kind names a server-pushed event.
type Kind string

// Booking channel.
const (
	KindBookingConfirmed    Kind = "booking_confirmed"
	KindBookingAccepted     Kind = "booking_accepted"
	KindOTPRequested        Kind = "otp_requested"
	KindWorkStarted         Kind = "work_started"
	KindWorkCompleted       Kind = "work_completed"
	KindBookingCancelled    Kind = "booking_cancelled"
	KindBookingStatusUpdate Kind = "booking_status_update"
)

// Messaging channel.
const (
	KindNewMessage           Kind = "new_message"
	KindMessageStatusChanged Kind = "message_status_changed"
	KindUserTyping           Kind = "user_typing"
	KindUserOnlineStatus     Kind = "user_online_status"
	KindJoinedConversation   Kind = "joined_conversation"
)

// Notification and offer channel.
const (
	KindNewNotification  Kind = "new_notification"
	KindNotificationRead Kind = "notification_read"
	KindNewOffer         Kind = "new_offer"
	KindOfferAccepted    Kind = "offer_accepted"
	KindOfferRejected    Kind = "offer_rejected"
	KindOfferCancelled   Kind = "offer_cancelled"
	KindOfferRevoked     Kind = "offer_revoked"
)

// Session events shared by every channel.
const (
	KindAuthenticated Kind = "authenticated"
	KindConnected     Kind = "connected"
)

var (
	BookingKinds = []Kind{
		KindBookingConfirmed, KindBookingAccepted, KindOTPRequested, KindWorkStarted,
		KindWorkCompleted, KindBookingCancelled, KindBookingStatusUpdate,
	}
	MessagingKinds = []Kind{
		KindNewMessage, KindMessageStatusChanged, KindUserTyping, KindUserOnlineStatus, KindJoinedConversation,
	}
	NotificationKinds = []Kind{
		KindNewNotification, KindNotificationRead,
		KindNewOffer, KindOfferAccepted, KindOfferRejected, KindOfferCancelled, KindOfferRevoked,
	}
)

// Meta carries the fields every event payload may include.
type Meta struct {
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// EventMeta exposes the common fields of a payload.
func (m Meta) EventMeta() Meta { return m }

// Payload is implemented by every typed event body.
type Payload interface {
	EventMeta() Meta
}

// BookingStatus is the lifecycle state of a booking as seen by the client.
type BookingStatus string

const (
	BookingNone      BookingStatus = ""
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingAccepted  BookingStatus = "accepted"
	BookingOngoing   BookingStatus = "ongoing"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// BookingStatusEvent is sent on every booking lifecycle change.
type BookingStatusEvent struct {
	Meta
	BookingID string          `json:"booking_id" validate:"required"`
	Status    BookingStatus   `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed accepted ongoing completed cancelled"`
	Booking   json.RawMessage `json:"booking,omitempty"`
}

// OTPRequestEvent asks the customer to share the start-of-work code.
type OTPRequestEvent struct {
	Meta
	BookingID string `json:"booking_id" validate:"required"`
	OTP       string `json:"otp" validate:"required"`
}

// BookingCancelledEvent reports who cancelled a booking.
type BookingCancelledEvent struct {
	Meta
	BookingID   string `json:"booking_id" validate:"required"`
	CancelledBy string `json:"cancelled_by,omitempty" validate:"omitempty,oneof=user professional"`
	Reason      string `json:"reason,omitempty"`
}

// ChatMessage is a single conversation message.
type ChatMessage struct {
	ID             string `json:"id" validate:"required"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderRole     string `json:"sender_role,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	Content        string `json:"content"`
	Status         string `json:"status,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
}

// NewMessageEvent delivers a message to conversation participants.
type NewMessageEvent struct {
	Meta
	Message        ChatMessage `json:"message"`
	ConversationID string      `json:"conversation_id" validate:"required"`
	SenderID       string      `json:"sender_id" validate:"required"`
}

// MessageStatusEvent reports a delivered or seen transition.
type MessageStatusEvent struct {
	Meta
	MessageID      string `json:"message_id" validate:"required"`
	ConversationID string `json:"conversation_id" validate:"required"`
	Status         string `json:"status" validate:"required,oneof=sent delivered seen"`
}

// TypingEvent is a typing indicator from another participant.
type TypingEvent struct {
	Meta
	ConversationID string `json:"conversation_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	UserName       string `json:"user_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

// UserOnlineStatusEvent reports presence changes.
type UserOnlineStatusEvent struct {
	Meta
	UserID   string `json:"user_id" validate:"required"`
	IsOnline bool   `json:"is_online"`
	LastSeen string `json:"last_seen,omitempty"`
}

// JoinedConversationEvent confirms a join_conversation action.
type JoinedConversationEvent struct {
	Meta
	ConversationID string `json:"conversation_id" validate:"required"`
}

// Notification is an inbox entry.
type Notification struct {
	Meta
	ID         string         `json:"id" validate:"required"`
	UserID     string         `json:"user_id,omitempty"`
	Type       string         `json:"type,omitempty"`
	Category   string         `json:"category,omitempty"`
	Priority   string         `json:"priority,omitempty"`
	Title      string         `json:"title"`
	Data       map[string]any `json:"data,omitempty"`
	ActionURL  string         `json:"action_url,omitempty"`
	ActionText string         `json:"action_text,omitempty"`
	ImageURL   string         `json:"image_url,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	IsRead     bool           `json:"is_read"`
	CreatedAt  string         `json:"created_at,omitempty"`
	ReadAt     string         `json:"read_at,omitempty"`
}

// Urgent reports whether the notification should stay on screen.
func (n *Notification) Urgent() bool {
	return n.Priority == "urgent"
}

// NotificationReadEvent synchronizes read state across sessions of one user.
type NotificationReadEvent struct {
	Meta
	NotificationID string `json:"notification_id" validate:"required"`
}

// PriceOffer is a price proposal between a customer and a professional.
type PriceOffer struct {
	ID              string  `json:"_id" validate:"required"`
	UserID          string  `json:"user_id,omitempty"`
	ProfessionalID  string  `json:"professional_id,omitempty"`
	ServiceType     string  `json:"service_type,omitempty"`
	Description     string  `json:"description,omitempty"`
	OfferedPrice    float64 `json:"offered_price,omitempty"`
	Status          string  `json:"status,omitempty"`
	ExpiresAt       string  `json:"expires_at,omitempty"`
	ResponseMessage string  `json:"response_message,omitempty"`
	BookingID       string  `json:"booking_id,omitempty"`
}

// OfferEvent is sent on every offer lifecycle change.
type OfferEvent struct {
	Meta
	Type  string     `json:"type,omitempty"`
	Offer PriceOffer `json:"offer"`
}

// AuthenticatedEvent acknowledges the authenticate action.
type AuthenticatedEvent struct {
	Meta
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ConnectedEvent greets a freshly connected session.
type ConnectedEvent struct {
	Meta
	UserID string `json:"user_id,omitempty"`
}
