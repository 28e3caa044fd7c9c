package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/core"
)

// APIHandlers provides the event ingestion and messaging endpoints.
type APIHandlers struct {
	bus Publisher
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(bus Publisher, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		bus: bus,
		log: logger,
	}
}

type acceptedResponse struct {
	Status string `json:"status"`
	Room   string `json:"room"`
}

// PublishEvent handles event ingestion from backend services.
// POST /api/events
func (h *APIHandlers) PublishEvent(c *gin.Context) {
	var p core.Publication
	if err := c.ShouldBindJSON(&p); err != nil {
		h.log.Debug().Err(err).Msg("invalid publication body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body"})
		return
	}
	if err := p.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	if err := h.bus.Publish(c.Request.Context(), p); err != nil {
		h.log.Error().Err(err).Str("room", p.Room).Msg("failed to publish event")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Detail: "event bus unavailable"})
		return
	}

	h.log.Debug().Str("room", p.Room).Str("kind", string(p.Event)).Str("user_id", currentUser(c)).Msg("event accepted")
	c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted", Room: p.Room})
}

// MarkConversationRead acknowledges a conversation read.
// POST /api/messages/conversations/:id/mark-read
func (h *APIHandlers) MarkConversationRead(c *gin.Context) {
	h.log.Debug().Str("conversation_id", c.Param("id")).Str("user_id", currentUser(c)).Msg("conversation marked read")
	c.JSON(http.StatusOK, successResponse{Success: true})
}

// UpdateMessageStatus acknowledges a delivered or seen status change.
// PUT /api/messages/messages/:id/status?status=
func (h *APIHandlers) UpdateMessageStatus(c *gin.Context) {
	switch status := c.Query("status"); status {
	case "delivered", "seen":
		h.log.Debug().Str("message_id", c.Param("id")).Str("status", status).Msg("message status updated")
		c.JSON(http.StatusOK, successResponse{Success: true})
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "status must be delivered or seen"})
	}
}

// UnreadMessages handles GET /api/messages/conversations/unread-count
// The relay keeps no message history, so the count is always zero.
func (h *APIHandlers) UnreadMessages(c *gin.Context) {
	c.JSON(http.StatusOK, unreadResponse{UnreadCount: 0})
}
