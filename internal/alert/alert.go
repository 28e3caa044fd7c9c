package alert

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Permission mirrors the desktop notification permission model.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

const (
	DefaultToneHz       = 800
	DefaultToneDuration = 300 * time.Millisecond
	DefaultQueueSize    = 64
)

// Alert is a user-facing side effect produced by an inbound event.
type Alert struct {
	Title   string
	Body    string
	Tag     string
	Urgent  bool
	Sound   bool
	Desktop bool
}

// Player plays a short tone.
type Player interface {
	Play(freqHz float64, d time.Duration) error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, body string, urgent bool) error
}

// Requester asks the user for desktop notification permission.
type Requester func() Permission

type Options struct {
	QueueSize      int
	ToneHz         float64
	ToneDuration   time.Duration
	SoundEnabled   bool
	DesktopEnabled bool
	Player         Player
	Notifier       Notifier
	Requester      Requester
	Logger         *zerolog.Logger
}

// Dispatcher runs alert side effects off the event path.
type Dispatcher struct {
	opts   Options
	logger zerolog.Logger
	queue  chan Alert

	mu         sync.RWMutex
	permission Permission
	once       sync.Once
}

func New(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ToneHz <= 0 {
		opts.ToneHz = DefaultToneHz
	}
	if opts.ToneDuration <= 0 {
		opts.ToneDuration = DefaultToneDuration
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "alert").Logger()
	}
	return &Dispatcher{
		opts:       opts,
		logger:     logger,
		queue:      make(chan Alert, opts.QueueSize),
		permission: PermissionDefault,
	}
}

// Dispatch enqueues an alert without blocking. It reports false when the queue is full.
func (d *Dispatcher) Dispatch(a Alert) bool {
	select {
	case d.queue <- a:
		return true
	default:
		d.logger.Debug().Str("tag", a.Tag).Msg("alert queue full, dropping")
		return false
	}
}

// Run plays queued alerts until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.play(a)
		}
	}
}

func (d *Dispatcher) play(a Alert) {
	if a.Sound && d.opts.SoundEnabled && d.opts.Player != nil {
		d.safely("sound", func() error {
			return d.opts.Player.Play(d.opts.ToneHz, d.opts.ToneDuration)
		})
	}
	if a.Desktop && d.opts.DesktopEnabled && d.opts.Notifier != nil && d.Permission() == PermissionGranted {
		d.safely("desktop", func() error {
			return d.opts.Notifier.Notify(a.Title, a.Body, a.Urgent)
		})
	}
}

// safely runs a backend call, swallowing errors and panics.
func (d *Dispatcher) safely(backend string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().Str("backend", backend).Interface("panic", r).Msg("alert backend panicked")
		}
	}()
	if err := fn(); err != nil {
		d.logger.Debug().Err(err).Str("backend", backend).Msg("alert backend failed")
	}
}

func (d *Dispatcher) Permission() Permission {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.permission
}

// RequestPermission runs the requester at most once and returns the resulting permission.
func (d *Dispatcher) RequestPermission() Permission {
	d.once.Do(func() {
		if d.opts.Requester == nil {
			return
		}
		p := d.opts.Requester()
		d.mu.Lock()
		d.permission = p
		d.mu.Unlock()
		d.logger.Debug().Str("permission", string(p)).Msg("desktop notification permission")
	})
	return d.Permission()
}
