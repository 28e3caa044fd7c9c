package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/proto"
)

var ErrNotConnected = errors.New("realtime: not connected")

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultConnectTimeout    = 20 * time.Second
)

// Options configures one channel connection.
type Options struct {
	// Name labels log lines, e.g. "booking".
	Name              string
	URL               string
	Token             string
	UserID            string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	ReadLimit         int64
	Logger            *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}

// Conn owns one persistent event-stream connection for a channel.
// It authenticates on every connect, reconnects with a bounded number of
// attempts and hands every inbound frame to its Router.
type Conn struct {
	opts   Options
	router *Router
	logger zerolog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	connected bool
	changed   chan struct{}
	observers []func(bool)
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(opts Options, router *Router) *Conn {
	opts = opts.withDefaults()
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	return &Conn{
		opts:    opts,
		router:  router,
		logger:  base.With().Str("channel", opts.Name).Logger(),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins connecting in the background. Without credentials the
// connection stays idle and never dials.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	if c.opts.Token == "" || c.opts.UserID == "" {
		c.logger.Debug().Msg("no credentials, staying idle")
		close(c.done)
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// OnStatus registers an observer called on every connect and disconnect.
// Observers run on the connection goroutine in registration order.
func (c *Conn) OnStatus(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitConnected blocks until the connection is up or ctx is done.
func (c *Conn) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.connected {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Done is closed once the connection stops trying to connect.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Emit sends an action to the server. It fails fast with ErrNotConnected.
func (c *Conn) Emit(ctx context.Context, action string, data any) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	msg, err := proto.NewAction(action, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", action, err)
	}
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		return fmt.Errorf("emit %s: %w", action, err)
	}
	return nil
}

// Close tears down the connection and waits for the background loop.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	ws := c.ws
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client closing")
	}
	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	}
	return nil
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	attempt := 0
	for {
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			attempt = 0
		}
		if attempt >= c.opts.ReconnectAttempts {
			c.logger.Error().Err(err).Int("attempts", attempt).Msg("giving up on reconnection")
			return
		}
		attempt++
		c.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("delay", c.opts.ReconnectDelay).
			Msg("connection lost, reconnecting")

		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials, authenticates and reads until the connection fails.
// It reports whether the connection was ever established.
func (c *Conn) session(ctx context.Context) (bool, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return false, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	ws, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.opts.Token}},
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	if c.opts.ReadLimit > 0 {
		ws.SetReadLimit(c.opts.ReadLimit)
	}

	auth, _ := proto.NewAction(proto.ActionAuthenticate, proto.AuthenticateData{UserID: c.opts.UserID})
	if err := wsjson.Write(ctx, ws, auth); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "authenticate failed")
		return false, fmt.Errorf("authenticate: %w", err)
	}

	if !c.setSocket(ws) {
		_ = ws.Close(websocket.StatusNormalClosure, "client closing")
		return false, context.Canceled
	}
	c.logger.Info().Str("user_id", c.opts.UserID).Msg("connected")

	err = c.readLoop(ctx, ws)
	c.setSocket(nil)
	_ = ws.Close(websocket.StatusNormalClosure, "")

	if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		c.logger.Info().Int("status", int(status)).Msg("disconnected by server")
	} else if ctx.Err() == nil {
		c.logger.Warn().Err(err).Msg("disconnected")
	}
	return true, err
}

// readLoop decodes frames itself: a frame that is not a valid envelope is
// dropped and the socket stays open.
func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		var f proto.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable frame")
			continue
		}
		c.router.Dispatch(f)
	}
}

// setSocket publishes the live socket and runs observers on a state change.
// It refuses a new socket once Close has been called.
func (c *Conn) setSocket(ws *websocket.Conn) bool {
	c.mu.Lock()
	if ws != nil && c.closed {
		c.mu.Unlock()
		return false
	}
	c.ws = ws
	up := ws != nil
	if c.connected == up {
		c.mu.Unlock()
		return true
	}
	c.connected = up
	close(c.changed)
	c.changed = make(chan struct{})
	observers := append([]func(bool){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		c.notify(fn, up)
	}
	return true
}

func (c *Conn) notify(fn func(bool), up bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("status observer panicked")
		}
	}()
	fn(up)
}

func (c *Conn) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", c.opts.UserID)
	q.Set("v", strconv.Itoa(proto.ProtocolVersion))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
