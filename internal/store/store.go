package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Notification is a persisted inbox entry.
type Notification struct {
	ID         string
	UserID     string
	Type       string
	Category   string
	Priority   string
	Title      string
	Message    string
	Data       map[string]any
	ActionURL  string
	ActionText string
	ImageURL   string
	Icon       string
	IsRead     bool
	CreatedAt  time.Time
	ReadAt     *time.Time
}

// Priority values used by the notification feed.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ListFilter selects one page of a user's inbox.
type ListFilter struct {
	Page     int
	Limit    int
	Category string
	IsRead   *bool
}

// Offset returns the row offset of the page.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// NotificationSettings are the per-user delivery preferences.
type NotificationSettings struct {
	UserID                   string
	PushEnabled              bool
	EmailEnabled             bool
	EmailBookingUpdates      bool
	EmailOffers              bool
	EmailSystemUpdates       bool
	BookingNotifications     bool
	PaymentNotifications     bool
	OfferNotifications       bool
	PromotionalNotifications bool
	SystemNotifications      bool
	QuietHoursEnabled        bool
	QuietHoursStart          string
	QuietHoursEnd            string
	UpdatedAt                time.Time
}

// DefaultSettings returns the preferences of a user who never changed them.
func DefaultSettings(userID string) *NotificationSettings {
	return &NotificationSettings{
		UserID:               userID,
		PushEnabled:          true,
		EmailEnabled:         true,
		EmailBookingUpdates:  true,
		EmailOffers:          true,
		EmailSystemUpdates:   true,
		BookingNotifications: true,
		PaymentNotifications: true,
		OfferNotifications:   true,
		SystemNotifications:  true,
	}
}

// NotificationStore handles inbox persistence.
type NotificationStore interface {
	// CreateNotification stores n. ID and CreatedAt must be set by the caller.
	CreateNotification(ctx context.Context, n *Notification) error

	// GetNotification returns ErrNotFound unless id belongs to userID.
	GetNotification(ctx context.Context, userID, id string) (*Notification, error)

	// ListNotifications returns one page, newest first, and the total matching the filter.
	ListNotifications(ctx context.Context, userID string, filter ListFilter) ([]*Notification, int, error)

	// CountUnread returns how many notifications of userID are unread.
	CountUnread(ctx context.Context, userID string) (int, error)

	// MarkRead marks one notification read. It returns false when nothing changed.
	MarkRead(ctx context.Context, userID, id string) (bool, error)

	// MarkAllRead marks every unread notification read and returns how many changed.
	MarkAllRead(ctx context.Context, userID string) (int, error)

	// DeleteNotification returns ErrNotFound when there was nothing to delete.
	DeleteNotification(ctx context.Context, userID, id string) error

	// ClearNotifications deletes the inbox and returns how many rows were removed.
	ClearNotifications(ctx context.Context, userID string) (int, error)
}

// SettingsStore handles notification preferences.
type SettingsStore interface {
	// GetSettings returns DefaultSettings when the user has no stored row.
	GetSettings(ctx context.Context, userID string) (*NotificationSettings, error)

	// SaveSettings inserts or replaces the row of s.UserID.
	SaveSettings(ctx context.Context, s *NotificationSettings) error
}

// KVStore is a small string key/value table, used for client credentials.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	NotificationStore
	SettingsStore
	KVStore

	// Close closes the underlying database connection.
	Close() error
}
