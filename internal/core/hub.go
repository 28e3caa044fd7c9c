package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// ReadMarker persists notification read state for mark_read.
type ReadMarker interface {
	MarkRead(ctx context.Context, userID, notificationID string) (bool, error)
}

type envelope struct {
	client *Client
	cmd    *Command
}

// Hub owns rooms, clients and presence. All state is touched only by the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbox      chan envelope
	publish    chan Publication
	stopped    chan struct{}

	rooms    map[string]*Room
	clients  map[*Client]struct{}
	presence map[string]int

	marker ReadMarker
	log    zerolog.Logger
	now    func() time.Time
}

// NewHub creates a hub. marker may be nil, in which case mark_read is only relayed.
func NewHub(marker ReadMarker, logger *zerolog.Logger) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "hub").Logger()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbox:      make(chan envelope, 64),
		publish:    make(chan Publication, 64),
		stopped:    make(chan struct{}),
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		presence:   make(map[string]int),
		marker:     marker,
		log:        l,
		now:        time.Now,
	}
}

// RegisterClient attaches c to the hub and starts forwarding its commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient detaches c. Its Events channel is closed by the hub.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Publish queues p for fan-out to its room.
func (h *Hub) Publish(ctx context.Context, p Publication) error {
	select {
	case h.publish <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrStopped
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.pump(ctx, c)
			h.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client registered")
		case c := <-h.unregister:
			h.drop(c)
		case env := <-h.inbox:
			if _, ok := h.clients[env.client]; ok {
				h.handle(ctx, env.client, env.cmd)
			}
		case p := <-h.publish:
			h.fanOut(p)
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// pump forwards a client's commands into the hub inbox, preserving order.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-c.quit:
				return
			case <-ctx.Done():
				return
			}
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for name := range c.rooms {
		h.leaveRoom(c, name)
	}
	if c.authenticated {
		h.presence[c.UserID]--
		if h.presence[c.UserID] <= 0 {
			delete(h.presence, c.UserID)
			h.broadcastPresence(c.UserID, false)
		}
	}
	close(c.quit)
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Str("user_id", c.UserID).Msg("client unregistered")
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Kind != CommandAuthenticate && !c.authenticated {
		deliver(c, errorEvent(ErrCodeUnauthorized, "authenticate first"))
		return
	}

	switch cmd.Kind {
	case CommandAuthenticate:
		h.authenticate(c, cmd.UserID)
	case CommandJoinBooking:
		h.join(c, BookingRoom(cmd.Scope), cmd.Scope)
	case CommandLeaveBooking:
		h.leave(c, BookingRoom(cmd.Scope), cmd.Scope)
	case CommandJoinConversation:
		if h.join(c, ConversationRoom(cmd.Scope), cmd.Scope) {
			h.send(c, proto.KindJoinedConversation, &proto.JoinedConversationEvent{
				Meta:           h.meta(),
				ConversationID: cmd.Scope,
			})
		}
	case CommandLeaveConversation:
		h.leave(c, ConversationRoom(cmd.Scope), cmd.Scope)
	case CommandTyping:
		h.typing(c, cmd)
	case CommandMessageSeen:
		h.messageSeen(c, cmd)
	case CommandMarkRead:
		h.markRead(ctx, c, cmd.NotificationID)
	case CommandJoinOffers:
		h.join(c, OffersRoom(c.UserID), c.UserID)
	case CommandLeaveOffers:
		h.leave(c, OffersRoom(c.UserID), c.UserID)
	default:
		deliver(c, errorEvent(ErrCodeBadRequest, "unsupported command"))
	}
}

func (h *Hub) authenticate(c *Client, userID string) {
	reply := &proto.AuthenticatedEvent{Meta: h.meta()}
	switch {
	case userID == "":
		reply.Error = "No user_id provided"
	case userID != c.UserID:
		reply.Error = "user_id does not match token"
	default:
		reply.Success = true
		reply.UserID = userID
	}
	if !reply.Success {
		h.log.Warn().Str("client_id", c.ID).Str("user_id", c.UserID).Str("claimed", userID).Msg("authenticate rejected")
		h.send(c, proto.KindAuthenticated, reply)
		return
	}

	if !c.authenticated {
		c.authenticated = true
		h.addToRoom(c, UserRoom(userID))
		h.presence[userID]++
		if h.presence[userID] == 1 {
			h.broadcastPresence(userID, true)
		}
	}
	h.send(c, proto.KindAuthenticated, reply)
}

// join adds c to room. It reports false and replies with an error when the
// scope is blank or c is already a member.
func (h *Hub) join(c *Client, room, scope string) bool {
	if scope == "" {
		deliver(c, errorEvent(ErrCodeBadRequest, "missing room scope"))
		return false
	}
	if !h.addToRoom(c, room) {
		deliver(c, errorEvent(ErrCodeAlreadyJoined, "already joined "+room))
		return false
	}
	h.log.Debug().Str("client_id", c.ID).Str("room", room).Msg("joined room")
	return true
}

func (h *Hub) leave(c *Client, room, scope string) {
	if scope == "" {
		deliver(c, errorEvent(ErrCodeBadRequest, "missing room scope"))
		return
	}
	if _, ok := c.rooms[room]; !ok {
		deliver(c, errorEvent(ErrCodeNotInRoom, "not in "+room))
		return
	}
	h.leaveRoom(c, room)
	h.log.Debug().Str("client_id", c.ID).Str("room", room).Msg("left room")
}

func (h *Hub) addToRoom(c *Client, name string) bool {
	room, ok := h.rooms[name]
	if !ok {
		room = NewRoom(name)
		h.rooms[name] = room
	}
	if !room.AddClient(c) {
		return false
	}
	c.rooms[name] = struct{}{}
	return true
}

func (h *Hub) leaveRoom(c *Client, name string) {
	delete(c.rooms, name)
	if room, ok := h.rooms[name]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, name)
		}
	}
}

func (h *Hub) typing(c *Client, cmd *Command) {
	if cmd.Scope == "" {
		deliver(c, errorEvent(ErrCodeBadRequest, "missing conversation_id"))
		return
	}
	name := cmd.UserName
	if name == "" {
		name = c.Name
	}
	h.toRoom(ConversationRoom(cmd.Scope), proto.KindUserTyping, &proto.TypingEvent{
		Meta:           h.meta(),
		ConversationID: cmd.Scope,
		UserID:         c.UserID,
		UserName:       name,
		IsTyping:       cmd.IsTyping,
	}, c)
}

func (h *Hub) messageSeen(c *Client, cmd *Command) {
	if cmd.Scope == "" || cmd.MessageID == "" {
		deliver(c, errorEvent(ErrCodeBadRequest, "missing message_id or conversation_id"))
		return
	}
	h.toRoom(ConversationRoom(cmd.Scope), proto.KindMessageStatusChanged, &proto.MessageStatusEvent{
		Meta:           h.meta(),
		MessageID:      cmd.MessageID,
		ConversationID: cmd.Scope,
		Status:         "seen",
	}, nil)
}

func (h *Hub) markRead(ctx context.Context, c *Client, notificationID string) {
	if notificationID == "" {
		deliver(c, errorEvent(ErrCodeBadRequest, "missing notification_id"))
		return
	}
	if h.marker != nil {
		if _, err := h.marker.MarkRead(ctx, c.UserID, notificationID); err != nil {
			h.log.Warn().Err(err).Str("user_id", c.UserID).Str("notification_id", notificationID).Msg("persist mark_read")
		}
	}
	h.toRoom(UserRoom(c.UserID), proto.KindNotificationRead, &proto.NotificationReadEvent{
		Meta:           h.meta(),
		NotificationID: notificationID,
	}, nil)
}

// broadcastPresence tells every other authenticated user about userID.
func (h *Hub) broadcastPresence(userID string, online bool) {
	status := &proto.UserOnlineStatusEvent{Meta: h.meta(), UserID: userID, IsOnline: online}
	if !online {
		status.LastSeen = status.Timestamp
	}
	ev := &Event{Kind: proto.KindUserOnlineStatus, Payload: status}
	for c := range h.clients {
		if c.authenticated && c.UserID != userID {
			deliver(c, ev)
		}
	}
}

func (h *Hub) fanOut(p Publication) {
	if err := p.Validate(); err != nil {
		h.log.Warn().Err(err).Str("room", p.Room).Msg("dropping publication")
		return
	}
	var data map[string]any
	_ = json.Unmarshal(p.Data, &data)
	if _, ok := data["timestamp"]; !ok {
		data["timestamp"] = proto.Timestamp(h.now())
	}
	delivered := h.toRoom(p.Room, p.Event, data, nil)
	h.log.Debug().Str("room", p.Room).Str("kind", string(p.Event)).Int("delivered", delivered).Msg("published")
}

func (h *Hub) toRoom(name string, kind proto.Kind, payload any, skip *Client) int {
	room, ok := h.rooms[name]
	if !ok {
		return 0
	}
	return room.Broadcast(&Event{Kind: kind, Room: name, Payload: payload}, skip)
}

func (h *Hub) send(c *Client, kind proto.Kind, payload any) {
	if !deliver(c, &Event{Kind: kind, Payload: payload}) {
		h.log.Warn().Str("client_id", c.ID).Str("kind", string(kind)).Msg("client queue full, event dropped")
	}
}

func (h *Hub) meta() proto.Meta {
	return proto.Meta{Timestamp: proto.Timestamp(h.now())}
}
