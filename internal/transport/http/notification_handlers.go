package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/proto"
	"github.com/vovakirdan/marketsync/internal/store"
)

// Publisher hands publications to the realtime side.
type Publisher interface {
	Publish(ctx context.Context, p core.Publication) error
}

// NotificationHandlers provides HTTP handlers for the notification inbox.
type NotificationHandlers struct {
	store store.Store
	bus   Publisher
	log   *zerolog.Logger
	now   func() time.Time
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(st store.Store, bus Publisher, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		store: st,
		bus:   bus,
		log:   logger,
		now:   time.Now,
	}
}

type listQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Category string `form:"category"`
	IsRead   *bool  `form:"is_read"`
}

// NotificationListResponse is one page of the inbox.
type NotificationListResponse struct {
	Notifications []proto.Notification `json:"notifications"`
	Total         int                  `json:"total"`
	UnreadCount   int                  `json:"unread_count"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

// CreateNotificationRequest represents the create notification request body.
type CreateNotificationRequest struct {
	UserID     string         `json:"user_id" binding:"required,max=64"`
	Type       string         `json:"type"`
	Category   string         `json:"category"`
	Priority   string         `json:"priority" binding:"omitempty,oneof=low medium high urgent"`
	Title      string         `json:"title" binding:"required"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data"`
	ActionURL  string         `json:"action_url"`
	ActionText string         `json:"action_text"`
	ImageURL   string         `json:"image_url"`
	Icon       string         `json:"icon"`
}

type countResponse struct {
	Count int `json:"count"`
}

type unreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// List handles GET /api/notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid list query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid query parameters"})
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	ctx := c.Request.Context()
	userID := currentUser(c)
	items, total, err := h.store.ListNotifications(ctx, userID, store.ListFilter{
		Page:     q.Page,
		Limit:    q.Limit,
		Category: q.Category,
		IsRead:   q.IsRead,
	})
	if err != nil {
		h.internalError(c, err, "failed to list notifications")
		return
	}
	unread, err := h.store.CountUnread(ctx, userID)
	if err != nil {
		h.internalError(c, err, "failed to count unread notifications")
		return
	}

	resp := NotificationListResponse{
		Notifications: make([]proto.Notification, 0, len(items)),
		Total:         total,
		UnreadCount:   unread,
		Page:          q.Page,
		Limit:         q.Limit,
	}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, notificationToProto(n))
	}
	c.JSON(http.StatusOK, resp)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	n, err := h.store.CountUnread(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, err, "failed to count unread notifications")
		return
	}
	c.JSON(http.StatusOK, unreadResponse{UnreadCount: n})
}

// MarkRead handles PUT /api/notifications/:id/read
// Marking an already read notification succeeds.
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	userID, id := currentUser(c), c.Param("id")

	changed, err := h.store.MarkRead(ctx, userID, id)
	if err != nil {
		h.internalError(c, err, "failed to mark notification read")
		return
	}
	if !changed {
		if _, err := h.store.GetNotification(ctx, userID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Notification not found"})
				return
			}
			h.internalError(c, err, "failed to load notification")
			return
		}
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

// MarkAllRead handles PUT /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	n, err := h.store.MarkAllRead(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, err, "failed to mark notifications read")
		return
	}
	c.JSON(http.StatusOK, countResponse{Count: n})
}

// Delete handles DELETE /api/notifications/:id
func (h *NotificationHandlers) Delete(c *gin.Context) {
	err := h.store.DeleteNotification(c.Request.Context(), currentUser(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Notification not found"})
		return
	}
	if err != nil {
		h.internalError(c, err, "failed to delete notification")
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

// Clear handles DELETE /api/notifications/clear-all
func (h *NotificationHandlers) Clear(c *gin.Context) {
	n, err := h.store.ClearNotifications(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, err, "failed to clear notifications")
		return
	}
	c.JSON(http.StatusOK, countResponse{Count: n})
}

// GetSettings handles GET /api/notifications/settings/me
func (h *NotificationHandlers) GetSettings(c *gin.Context) {
	s, err := h.store.GetSettings(c.Request.Context(), currentUser(c))
	if err != nil {
		h.internalError(c, err, "failed to load settings")
		return
	}
	c.JSON(http.StatusOK, settingsToAPI(s))
}

// UpdateSettings handles PUT /api/notifications/settings/me
func (h *NotificationHandlers) UpdateSettings(c *gin.Context) {
	var update api.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.log.Debug().Err(err).Msg("invalid settings update")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	s, err := h.store.GetSettings(ctx, currentUser(c))
	if err != nil {
		h.internalError(c, err, "failed to load settings")
		return
	}
	applySettingsUpdate(s, update)
	s.UpdatedAt = h.now().UTC()
	if err := h.store.SaveSettings(ctx, s); err != nil {
		h.internalError(c, err, "failed to save settings")
		return
	}
	c.JSON(http.StatusOK, settingsToAPI(s))
}

// Create handles POST /api/notifications
// The stored notification is pushed as new_notification to the recipient's room.
func (h *NotificationHandlers) Create(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create notification request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body"})
		return
	}

	n := &store.Notification{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Type:       req.Type,
		Category:   req.Category,
		Priority:   req.Priority,
		Title:      req.Title,
		Message:    req.Message,
		Data:       req.Data,
		ActionURL:  req.ActionURL,
		ActionText: req.ActionText,
		ImageURL:   req.ImageURL,
		Icon:       req.Icon,
		CreatedAt:  h.now().UTC(),
	}
	if n.Priority == "" {
		n.Priority = store.PriorityMedium
	}

	ctx := c.Request.Context()
	if err := h.store.CreateNotification(ctx, n); err != nil {
		h.internalError(c, err, "failed to create notification")
		return
	}

	out := notificationToProto(n)
	data, err := json.Marshal(out)
	if err != nil {
		h.internalError(c, err, "failed to encode notification")
		return
	}
	if err := h.bus.Publish(ctx, core.Publication{
		Room:  core.UserRoom(n.UserID),
		Event: proto.KindNewNotification,
		Data:  data,
	}); err != nil {
		h.log.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to publish notification")
	}

	h.log.Info().Str("notification_id", n.ID).Str("user_id", n.UserID).Msg("notification created")
	c.JSON(http.StatusCreated, out)
}

func (h *NotificationHandlers) internalError(c *gin.Context, err error, msg string) {
	h.log.Error().Err(err).Str("user_id", currentUser(c)).Msg(msg)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "internal server error"})
}

func notificationToProto(n *store.Notification) proto.Notification {
	out := proto.Notification{
		ID:         n.ID,
		UserID:     n.UserID,
		Type:       n.Type,
		Category:   n.Category,
		Priority:   n.Priority,
		Title:      n.Title,
		Data:       n.Data,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
		ImageURL:   n.ImageURL,
		Icon:       n.Icon,
		IsRead:     n.IsRead,
		CreatedAt:  proto.Timestamp(n.CreatedAt),
	}
	out.Message = n.Message
	if n.ReadAt != nil {
		out.ReadAt = proto.Timestamp(*n.ReadAt)
	}
	return out
}

func settingsToAPI(s *store.NotificationSettings) api.Settings {
	return api.Settings{
		PushEnabled:              s.PushEnabled,
		EmailEnabled:             s.EmailEnabled,
		EmailBookingUpdates:      s.EmailBookingUpdates,
		EmailOffers:              s.EmailOffers,
		EmailSystemUpdates:       s.EmailSystemUpdates,
		BookingNotifications:     s.BookingNotifications,
		PaymentNotifications:     s.PaymentNotifications,
		OfferNotifications:       s.OfferNotifications,
		PromotionalNotifications: s.PromotionalNotifications,
		SystemNotifications:      s.SystemNotifications,
		QuietHoursEnabled:        s.QuietHoursEnabled,
		QuietHoursStart:          s.QuietHoursStart,
		QuietHoursEnd:            s.QuietHoursEnd,
	}
}

func applySettingsUpdate(s *store.NotificationSettings, u api.SettingsUpdate) {
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&s.PushEnabled, u.PushEnabled)
	setBool(&s.EmailEnabled, u.EmailEnabled)
	setBool(&s.EmailBookingUpdates, u.EmailBookingUpdates)
	setBool(&s.EmailOffers, u.EmailOffers)
	setBool(&s.EmailSystemUpdates, u.EmailSystemUpdates)
	setBool(&s.BookingNotifications, u.BookingNotifications)
	setBool(&s.PaymentNotifications, u.PaymentNotifications)
	setBool(&s.OfferNotifications, u.OfferNotifications)
	setBool(&s.PromotionalNotifications, u.PromotionalNotifications)
	setBool(&s.SystemNotifications, u.SystemNotifications)
	setBool(&s.QuietHoursEnabled, u.QuietHoursEnabled)
	if u.QuietHoursStart != nil {
		s.QuietHoursStart = *u.QuietHoursStart
	}
	if u.QuietHoursEnd != nil {
		s.QuietHoursEnd = *u.QuietHoursEnd
	}
}
