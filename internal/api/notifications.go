package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// ListParams filters a notification page.
type ListParams struct {
	Page     int
	Limit    int
	Category string
	IsRead   *bool
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	page, limit := p.Page, p.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.IsRead != nil {
		q.Set("is_read", strconv.FormatBool(*p.IsRead))
	}
	return q
}

// NotificationList is one page of the inbox.
type NotificationList struct {
	Notifications []proto.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	UnreadCount   int                  `json:"unread_count"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

// Settings are the per-user notification preferences.
type Settings struct {
	PushEnabled              bool   `json:"push_enabled"`
	EmailEnabled             bool   `json:"email_enabled"`
	EmailBookingUpdates      bool   `json:"email_booking_updates"`
	EmailOffers              bool   `json:"email_offers"`
	EmailSystemUpdates       bool   `json:"email_system_updates"`
	BookingNotifications     bool   `json:"booking_notifications"`
	PaymentNotifications     bool   `json:"payment_notifications"`
	OfferNotifications       bool   `json:"offer_notifications"`
	PromotionalNotifications bool   `json:"promotional_notifications"`
	SystemNotifications      bool   `json:"system_notifications"`
	QuietHoursEnabled        bool   `json:"quiet_hours_enabled"`
	QuietHoursStart          string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd            string `json:"quiet_hours_end,omitempty"`
}

// SettingsUpdate is a partial settings change. Nil fields are left untouched.
type SettingsUpdate struct {
	PushEnabled              *bool   `json:"push_enabled,omitempty"`
	EmailEnabled             *bool   `json:"email_enabled,omitempty"`
	EmailBookingUpdates      *bool   `json:"email_booking_updates,omitempty"`
	EmailOffers              *bool   `json:"email_offers,omitempty"`
	EmailSystemUpdates       *bool   `json:"email_system_updates,omitempty"`
	BookingNotifications     *bool   `json:"booking_notifications,omitempty"`
	PaymentNotifications     *bool   `json:"payment_notifications,omitempty"`
	OfferNotifications       *bool   `json:"offer_notifications,omitempty"`
	PromotionalNotifications *bool   `json:"promotional_notifications,omitempty"`
	SystemNotifications      *bool   `json:"system_notifications,omitempty"`
	QuietHoursEnabled        *bool   `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart          *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd            *string `json:"quiet_hours_end,omitempty"`
}

type countResponse struct {
	Count int `json:"count"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

func (c *Client) ListNotifications(ctx context.Context, params ListParams) (*NotificationList, error) {
	var out NotificationList
	if err := c.do(ctx, http.MethodGet, []string{"notifications"}, params.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out unreadResponse
	if err := c.do(ctx, http.MethodGet, []string{"notifications", "unread-count"}, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, []string{"notifications", id, "read"}, nil, nil, nil)
}

// MarkAllNotificationsRead returns how many notifications changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodPut, []string{"notifications", "read-all"}, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"notifications", id}, nil, nil, nil)
}

// ClearNotifications deletes the whole inbox and returns how many were removed.
func (c *Client) ClearNotifications(ctx context.Context) (int, error) {
	var out countResponse
	if err := c.do(ctx, http.MethodDelete, []string{"notifications", "clear-all"}, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) NotificationSettings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.do(ctx, http.MethodGet, []string{"notifications", "settings", "me"}, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateNotificationSettings(ctx context.Context, update SettingsUpdate) error {
	return c.do(ctx, http.MethodPut, []string{"notifications", "settings", "me"}, nil, update, nil)
}
