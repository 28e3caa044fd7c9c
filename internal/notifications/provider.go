package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/proto"
	"github.com/vovakirdan/marketsync/internal/realtime"
)

const (
	DefaultPageSize = 20
	offersScope     = "offers"
	markReadTimeout = 5 * time.Second
)

// API is the notification REST surface the provider mirrors changes to.
type API interface {
	ListNotifications(ctx context.Context, params api.ListParams) (*api.NotificationList, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) (int, error)
	DeleteNotification(ctx context.Context, id string) error
	ClearNotifications(ctx context.Context) (int, error)
}

// PermissionRequester asks for desktop notification permission.
type PermissionRequester interface {
	RequestPermission() alert.Permission
}

type Config struct {
	Realtime    realtime.Options
	API         API
	Effects     realtime.Effects
	Permissions PermissionRequester
	PageSize    int
}

// Provider keeps the notification inbox and offer feed in sync with the
// notification channel.
type Provider struct {
	conn        *realtime.Conn
	router      *realtime.Router
	rooms       *realtime.Rooms
	api         API
	permissions PermissionRequester
	pageSize    int
	logger      zerolog.Logger

	mu      sync.RWMutex
	items   []proto.Notification
	unread  int
	total   int
	err     error
	loading bool
	offers  map[proto.Kind][]proto.OfferEvent

	// readUnloaded holds ids marked read here that are outside the loaded page.
	readUnloaded map[string]struct{}
}

func NewProvider(cfg Config) *Provider {
	opts := cfg.Realtime
	if opts.Name == "" {
		opts.Name = "notifications"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	p := &Provider{
		api:         cfg.API,
		permissions: cfg.Permissions,
		pageSize:    cfg.PageSize,
		logger:      base.With().Str("channel", opts.Name).Logger(),
		offers:      make(map[proto.Kind][]proto.OfferEvent),

		readUnloaded: make(map[string]struct{}),
	}

	routes := []realtime.Route{
		{Kind: proto.KindNewNotification, Apply: p.applyNew, Alert: notificationAlert},
		{Kind: proto.KindNotificationRead, Apply: p.applyRead},
	}
	for _, kind := range OfferKinds {
		routes = append(routes, realtime.Route{Kind: kind, Apply: p.applyOffer, Alert: offerAlert})
	}
	p.router = realtime.NewRouter(opts.Logger, routes, realtime.WithEffects(cfg.Effects), realtime.WithChannel(opts.Name))
	p.conn = realtime.New(opts, p.router)
	p.rooms = realtime.NewRooms(p.conn, realtime.RoomSpec{
		Name:        opts.Name,
		JoinAction:  proto.ActionJoinOffersRoom,
		LeaveAction: proto.ActionLeaveOffersRoom,
		Data:        func(string) any { return struct{}{} },
	}, opts.Logger)
	p.conn.OnStatus(p.rooms.HandleStatus)
	return p
}

// Start requests desktop notification permission once and begins connecting.
func (p *Provider) Start(ctx context.Context) {
	if p.permissions != nil {
		p.permissions.RequestPermission()
	}
	p.conn.Start(ctx)
}

func (p *Provider) Close() error { return p.conn.Close() }

func (p *Provider) Connected() bool { return p.conn.Connected() }

// Done is closed once the connection stops trying to reconnect.
func (p *Provider) Done() <-chan struct{} { return p.conn.Done() }

func (p *Provider) WaitConnected(ctx context.Context) error { return p.conn.WaitConnected(ctx) }

func (p *Provider) OnStatus(fn func(connected bool)) { p.conn.OnStatus(fn) }

// Notifications returns the loaded inbox, newest first.
func (p *Provider) Notifications() []proto.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]proto.Notification(nil), p.items...)
}

func (p *Provider) UnreadCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unread
}

func (p *Provider) Total() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// Err returns the error of the last load, if any.
func (p *Provider) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func (p *Provider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// OnNotification registers a listener for new notifications.
func (p *Provider) OnNotification(fn func(*proto.Notification)) func() {
	return p.router.Registry().Subscribe(proto.KindNewNotification, func(ev proto.Event) {
		fn(ev.Payload.(*proto.Notification))
	})
}

// Fetch loads one page. Page 1 replaces the inbox, later pages append to it.
func (p *Provider) Fetch(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	list, err := p.api.ListNotifications(ctx, api.ListParams{Page: page, Limit: p.pageSize})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		p.err = err
		return err
	}
	if page == 1 {
		p.items = append([]proto.Notification(nil), list.Notifications...)
	} else {
		p.items = append(p.items, list.Notifications...)
	}
	p.unread = max(0, list.UnreadCount)
	p.total = list.Total
	p.err = nil
	return nil
}

// RefreshUnreadCount reloads the unread counter from the backend.
func (p *Provider) RefreshUnreadCount(ctx context.Context) error {
	n, err := p.api.UnreadCount(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("refresh unread count")
		return err
	}
	p.mu.Lock()
	p.unread = max(0, n)
	p.mu.Unlock()
	return nil
}

// MarkRead marks a notification read locally, tells other sessions over the
// connection without waiting, then persists the change.
func (p *Provider) MarkRead(ctx context.Context, id string) error {
	p.mu.Lock()
	if i := p.index(id); i >= 0 {
		if !p.items[i].IsRead {
			p.items[i].IsRead = true
			p.unread = max(0, p.unread-1)
		}
	} else if _, seen := p.readUnloaded[id]; !seen {
		p.readUnloaded[id] = struct{}{}
		p.unread = max(0, p.unread-1)
	}
	p.mu.Unlock()

	if p.conn.Connected() {
		go p.announceRead(id)
	}
	return p.api.MarkNotificationRead(ctx, id)
}

func (p *Provider) announceRead(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()
	if err := p.conn.Emit(ctx, proto.ActionMarkRead, proto.MarkReadData{NotificationID: id}); err != nil {
		p.logger.Debug().Err(err).Str("notification_id", id).Msg("mark_read not sent")
	}
}

// MarkAllRead marks the whole inbox read locally, then persists the change.
func (p *Provider) MarkAllRead(ctx context.Context) error {
	p.mu.Lock()
	for i := range p.items {
		p.items[i].IsRead = true
	}
	p.unread = 0
	p.mu.Unlock()

	_, err := p.api.MarkAllNotificationsRead(ctx)
	return err
}

// Remove drops a notification locally, then deletes it on the backend.
func (p *Provider) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	if i := p.index(id); i >= 0 {
		if !p.items[i].IsRead {
			p.unread = max(0, p.unread-1)
		}
		p.items = append(p.items[:i], p.items[i+1:]...)
		p.total = max(0, p.total-1)
	}
	p.mu.Unlock()

	return p.api.DeleteNotification(ctx, id)
}

// ClearAll empties the inbox locally, then on the backend.
func (p *Provider) ClearAll(ctx context.Context) error {
	p.mu.Lock()
	p.items = nil
	p.unread = 0
	p.total = 0
	p.mu.Unlock()

	_, err := p.api.ClearNotifications(ctx)
	return err
}

func (p *Provider) index(id string) int {
	for i := range p.items {
		if p.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Provider) applyNew(ev proto.Event) {
	n := ev.Payload.(*proto.Notification)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append([]proto.Notification{*n}, p.items...)
	if !n.IsRead {
		p.unread++
	}
	p.total++
}

// applyRead converges read state across sessions. A notification already read
// here, e.g. by MarkRead in this session, does not count down twice.
func (p *Provider) applyRead(ev proto.Event) {
	r := ev.Payload.(*proto.NotificationReadEvent)
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.index(r.NotificationID)
	if i >= 0 {
		if p.items[i].IsRead {
			return
		}
		p.items[i].IsRead = true
	} else if _, seen := p.readUnloaded[r.NotificationID]; seen {
		return
	}
	p.unread = max(0, p.unread-1)
}

func notificationAlert(ev proto.Event) *alert.Alert {
	n := ev.Payload.(*proto.Notification)
	return &alert.Alert{
		Title:   n.Title,
		Body:    n.Message,
		Tag:     n.ID,
		Urgent:  n.Urgent(),
		Sound:   true,
		Desktop: true,
	}
}
