package realtime

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/alert"
	"github.com/vovakirdan/marketsync/internal/proto"
)

// Route binds one event kind to its projection update and optional alert.
type Route struct {
	Kind  proto.Kind
	Apply func(proto.Event)
	Alert func(proto.Event) *alert.Alert
}

// Effects receives alerts produced by routed events. Dispatch must not block.
type Effects interface {
	Dispatch(alert.Alert) bool
}

type RouterOption func(*Router)

// WithEffects sets the alert sink.
func WithEffects(e Effects) RouterOption {
	return func(r *Router) { r.effects = e }
}

// WithChannel tags log lines with the channel name.
func WithChannel(name string) RouterOption {
	return func(r *Router) { r.channel = name }
}

// Router decodes frames and fans them out: projection first, handlers second, alerts last.
type Router struct {
	logger   zerolog.Logger
	channel  string
	routes   map[proto.Kind]Route
	registry *Registry
	effects  Effects
}

func NewRouter(logger *zerolog.Logger, routes []Route, opts ...RouterOption) *Router {
	r := &Router{routes: make(map[proto.Kind]Route, len(routes))}
	for _, opt := range opts {
		opt(r)
	}
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}
	r.logger = base.With().Str("channel", r.channel).Logger()

	kinds := make([]proto.Kind, 0, len(routes))
	for _, rt := range routes {
		r.routes[rt.Kind] = rt
		kinds = append(kinds, rt.Kind)
	}
	r.registry = NewRegistry(kinds)
	return r
}

func (r *Router) Registry() *Registry {
	return r.registry
}

// Dispatch handles one server frame. It never panics.
func (r *Router) Dispatch(f proto.Frame) {
	if f.Type == proto.FrameTypeError {
		r.logger.Warn().Interface("error", f.Error).Msg("server error frame")
		return
	}
	ev, err := proto.Decode(f)
	switch {
	case errors.Is(err, proto.ErrUnknownKind), errors.Is(err, proto.ErrNotEvent):
		r.logger.Debug().Str("kind", f.Event).Str("type", f.Type).Msg("dropping unknown frame")
		return
	case err != nil:
		r.logger.Warn().Err(err).Str("kind", f.Event).Msg("dropping malformed event")
		return
	}

	if ev.Kind == proto.KindAuthenticated {
		r.logAuthenticated(ev)
	}

	route, ok := r.routes[ev.Kind]
	if !ok {
		r.logger.Debug().Str("kind", string(ev.Kind)).Msg("no route for event")
		return
	}
	if route.Apply != nil {
		r.call("apply", ev, route.Apply)
	}
	for _, h := range r.registry.handlers(ev.Kind) {
		r.call("handler", ev, h)
	}
	if route.Alert != nil && r.effects != nil {
		var a *alert.Alert
		r.call("alert", ev, func(ev proto.Event) { a = route.Alert(ev) })
		if a != nil {
			r.effects.Dispatch(*a)
		}
	}
}

func (r *Router) logAuthenticated(ev proto.Event) {
	p, ok := ev.Payload.(*proto.AuthenticatedEvent)
	if !ok {
		return
	}
	if p.Success {
		r.logger.Debug().Str("user_id", p.UserID).Msg("authenticated")
		return
	}
	r.logger.Warn().Str("error", p.Error).Msg("authentication rejected")
}

func (r *Router) call(stage string, ev proto.Event, fn func(proto.Event)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("kind", string(ev.Kind)).
				Str("stage", stage).
				Interface("panic", rec).
				Msg("event consumer panicked")
		}
	}()
	fn(ev)
}
