package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/proto"
	"github.com/vovakirdan/marketsync/internal/realtime"
)

const DefaultTypingTTL = 10 * time.Second

// ConversationAPI is the REST surface the provider mirrors local reads to.
type ConversationAPI interface {
	MarkConversationRead(ctx context.Context, conversationID string) error
}

type Config struct {
	Realtime realtime.Options
	// UserName is sent along with typing indicators.
	UserName string
	API      ConversationAPI
	Effects  realtime.Effects
	// TypingTTL hides typing indicators that were never cleared.
	TypingTTL time.Duration
}

// Typist is a participant currently typing in a conversation.
type Typist struct {
	UserID   string
	UserName string
	Since    time.Time
}

// Provider keeps the messaging projection in sync with the messaging channel.
type Provider struct {
	conn   *realtime.Conn
	router *realtime.Router
	rooms  *realtime.Rooms
	api    ConversationAPI
	logger zerolog.Logger

	userID    string
	userName  string
	typingTTL time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	active   string
	online   map[string]struct{}
	typing   map[string]map[string]Typist
	statuses map[string]string
	unread   map[string]int
}

func NewProvider(cfg Config) *Provider {
	opts := cfg.Realtime
	if opts.Name == "" {
		opts.Name = "messaging"
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = DefaultTypingTTL
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	p := &Provider{
		api:       cfg.API,
		logger:    base.With().Str("channel", opts.Name).Logger(),
		userID:    opts.UserID,
		userName:  cfg.UserName,
		typingTTL: cfg.TypingTTL,
		now:       time.Now,
		online:    make(map[string]struct{}),
		typing:    make(map[string]map[string]Typist),
		statuses:  make(map[string]string),
		unread:    make(map[string]int),
	}

	routes := []realtime.Route{
		{Kind: proto.KindNewMessage, Apply: p.applyNewMessage, Alert: p.messageAlert},
		{Kind: proto.KindMessageStatusChanged, Apply: p.applyStatus},
		{Kind: proto.KindUserTyping, Apply: p.applyTyping},
		{Kind: proto.KindUserOnlineStatus, Apply: p.applyOnline},
		{Kind: proto.KindJoinedConversation, Apply: p.applyJoined},
	}
	p.router = realtime.NewRouter(opts.Logger, routes, realtime.WithEffects(cfg.Effects), realtime.WithChannel(opts.Name))
	p.conn = realtime.New(opts, p.router)
	p.rooms = realtime.NewRooms(p.conn, realtime.RoomSpec{
		Name:        opts.Name,
		JoinAction:  proto.ActionJoinConversation,
		LeaveAction: proto.ActionLeaveConversation,
		Data:        func(id string) any { return proto.ConversationData{ConversationID: id} },
	}, opts.Logger)
	p.conn.OnStatus(p.rooms.HandleStatus)
	return p
}

func (p *Provider) Start(ctx context.Context) { p.conn.Start(ctx) }

func (p *Provider) Close() error { return p.conn.Close() }

func (p *Provider) Connected() bool { return p.conn.Connected() }

// Done is closed once the connection stops trying to reconnect.
func (p *Provider) Done() <-chan struct{} { return p.conn.Done() }

func (p *Provider) WaitConnected(ctx context.Context) error { return p.conn.WaitConnected(ctx) }

func (p *Provider) OnStatus(fn func(connected bool)) { p.conn.OnStatus(fn) }

// CurrentUserID returns the id the connection authenticates as.
func (p *Provider) CurrentUserID() string { return p.userID }

// JoinConversation joins the conversation room and makes it active.
// It does nothing while disconnected.
func (p *Provider) JoinConversation(ctx context.Context, conversationID string) bool {
	p.rooms.Join(ctx, conversationID)
	if !p.rooms.Joined(conversationID) {
		return false
	}
	p.mu.Lock()
	p.active = conversationID
	p.mu.Unlock()
	return true
}

// LeaveConversation leaves the room and clears the active conversation if it matches.
func (p *Provider) LeaveConversation(ctx context.Context, conversationID string) bool {
	sent := p.rooms.Leave(ctx, conversationID)
	p.mu.Lock()
	if p.active == conversationID {
		p.active = ""
	}
	p.mu.Unlock()
	return sent
}

// SetActiveConversation marks the conversation the user is looking at.
// Messages in the active conversation do not count as unread.
func (p *Provider) SetActiveConversation(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = conversationID
}

func (p *Provider) ActiveConversation() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// EmitTyping announces a typing indicator change. It reports whether it was sent.
func (p *Provider) EmitTyping(ctx context.Context, conversationID string, isTyping bool) bool {
	return p.emit(ctx, proto.ActionTyping, proto.TypingData{
		ConversationID: conversationID,
		IsTyping:       isTyping,
		UserName:       p.userName,
	})
}

// EmitMessageSeen reports that a message was displayed. It reports whether it was sent.
func (p *Provider) EmitMessageSeen(ctx context.Context, messageID, conversationID string) bool {
	return p.emit(ctx, proto.ActionMessageSeen, proto.MessageSeenData{
		MessageID:      messageID,
		ConversationID: conversationID,
	})
}

func (p *Provider) emit(ctx context.Context, action string, data any) bool {
	if !p.conn.Connected() {
		return false
	}
	if err := p.conn.Emit(ctx, action, data); err != nil {
		p.logger.Debug().Err(err).Str("action", action).Msg("emit failed")
		return false
	}
	return true
}

// MarkConversationRead zeroes the local unread count, then tells the backend.
// The local change is kept even if the request fails.
func (p *Provider) MarkConversationRead(ctx context.Context, conversationID string) error {
	p.mu.Lock()
	delete(p.unread, conversationID)
	p.mu.Unlock()
	if p.api == nil {
		return nil
	}
	return p.api.MarkConversationRead(ctx, conversationID)
}

func (p *Provider) IsUserOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// OnlineUsers returns the online user ids in sorted order.
func (p *Provider) OnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Typing returns who is typing in a conversation, oldest first.
func (p *Provider) Typing(conversationID string) []Typist {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cutoff := p.now().Add(-p.typingTTL)
	out := make([]Typist, 0, len(p.typing[conversationID]))
	for _, t := range p.typing[conversationID] {
		if t.Since.After(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// MessageStatus returns the last known status of a message.
func (p *Provider) MessageStatus(messageID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.statuses[messageID]
	return s, ok
}

func (p *Provider) UnreadCount(conversationID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unread[conversationID]
}

// TotalUnread sums unread counts over all conversations.
func (p *Provider) TotalUnread() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, n := range p.unread {
		total += n
	}
	return total
}

func (p *Provider) OnNewMessage(fn func(*proto.NewMessageEvent)) func() {
	return p.router.Registry().Subscribe(proto.KindNewMessage, func(ev proto.Event) {
		fn(ev.Payload.(*proto.NewMessageEvent))
	})
}

func (p *Provider) OnMessageStatusChange(fn func(*proto.MessageStatusEvent)) func() {
	return p.router.Registry().Subscribe(proto.KindMessageStatusChanged, func(ev proto.Event) {
		fn(ev.Payload.(*proto.MessageStatusEvent))
	})
}

func (p *Provider) OnTyping(fn func(*proto.TypingEvent)) func() {
	return p.router.Registry().Subscribe(proto.KindUserTyping, func(ev proto.Event) {
		fn(ev.Payload.(*proto.TypingEvent))
	})
}

func (p *Provider) OnUserOnlineStatus(fn func(*proto.UserOnlineStatusEvent)) func() {
	return p.router.Registry().Subscribe(proto.KindUserOnlineStatus, func(ev proto.Event) {
		fn(ev.Payload.(*proto.UserOnlineStatusEvent))
	})
}

func (p *Provider) applyNewMessage(ev proto.Event) {
	m := ev.Payload.(*proto.NewMessageEvent)
	p.mu.Lock()
	defer p.mu.Unlock()

	status := m.Message.Status
	if status == "" {
		status = "sent"
	}
	p.statuses[m.Message.ID] = status
	if typists := p.typing[m.ConversationID]; typists != nil {
		delete(typists, m.SenderID)
	}
	if m.SenderID != p.userID && m.ConversationID != p.active {
		p.unread[m.ConversationID]++
	}
}

func (p *Provider) applyStatus(ev proto.Event) {
	s := ev.Payload.(*proto.MessageStatusEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[s.MessageID] = s.Status
}

func (p *Provider) applyTyping(ev proto.Event) {
	t := ev.Payload.(*proto.TypingEvent)
	if t.UserID == p.userID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	typists := p.typing[t.ConversationID]
	if !t.IsTyping {
		delete(typists, t.UserID)
		if len(typists) == 0 {
			delete(p.typing, t.ConversationID)
		}
		return
	}
	if typists == nil {
		typists = make(map[string]Typist)
		p.typing[t.ConversationID] = typists
	}
	typists[t.UserID] = Typist{UserID: t.UserID, UserName: t.UserName, Since: p.now()}
}

func (p *Provider) applyOnline(ev proto.Event) {
	o := ev.Payload.(*proto.UserOnlineStatusEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	if o.IsOnline {
		p.online[o.UserID] = struct{}{}
	} else {
		delete(p.online, o.UserID)
	}
}

func (p *Provider) applyJoined(ev proto.Event) {
	j := ev.Payload.(*proto.JoinedConversationEvent)
	p.logger.Debug().Str("conversation_id", j.ConversationID).Msg("joined conversation")
}

func (p *Provider) messageAlert(ev proto.Event) *alert.Alert {
	m := ev.Payload.(*proto.NewMessageEvent)
	if m.SenderID == p.userID {
		return nil
	}
	title := "New message"
	if m.Message.SenderName != "" {
		title = "New message from " + m.Message.SenderName
	}
	return &alert.Alert{
		Title:   title,
		Body:    m.Message.Content,
		Tag:     "conversation:" + m.ConversationID,
		Sound:   true,
		Desktop: true,
	}
}
