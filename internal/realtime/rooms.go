package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Emitter is the subset of Conn that room membership needs.
type Emitter interface {
	Connected() bool
	Emit(ctx context.Context, action string, data any) error
}

// RoomSpec describes how a channel joins and leaves its server-side rooms.
type RoomSpec struct {
	Name        string
	JoinAction  string
	LeaveAction string
	// Data builds the action payload for a scope.
	Data func(scope string) any
}

// Rooms tracks which server rooms the current connection session has joined.
type Rooms struct {
	emitter Emitter
	spec    RoomSpec
	logger  zerolog.Logger

	mu     sync.Mutex
	joined map[string]struct{}
	active string
}

func NewRooms(emitter Emitter, spec RoomSpec, logger *zerolog.Logger) *Rooms {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}
	return &Rooms{
		emitter: emitter,
		spec:    spec,
		logger:  base.With().Str("rooms", spec.Name).Logger(),
		joined:  make(map[string]struct{}),
	}
}

// Join subscribes to scope. It emits at most once per connection session and
// does nothing while disconnected. It reports whether a join was sent.
func (r *Rooms) Join(ctx context.Context, scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.emitter.Connected() {
		r.logger.Debug().Str("room", scope).Msg("join skipped, not connected")
		return false
	}
	if _, ok := r.joined[scope]; ok {
		return false
	}
	if err := r.emitter.Emit(ctx, r.spec.JoinAction, r.payload(scope)); err != nil {
		r.logger.Debug().Err(err).Str("room", scope).Msg("join failed")
		return false
	}
	r.joined[scope] = struct{}{}
	r.active = scope
	r.logger.Debug().Str("room", scope).Msg("joined")
	return true
}

// Leave unsubscribes from scope. Unknown scopes are ignored.
func (r *Rooms) Leave(ctx context.Context, scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.joined[scope]; !ok {
		return false
	}
	delete(r.joined, scope)
	if r.active == scope {
		r.active = ""
	}
	if !r.emitter.Connected() {
		return false
	}
	if err := r.emitter.Emit(ctx, r.spec.LeaveAction, r.payload(scope)); err != nil {
		r.logger.Debug().Err(err).Str("room", scope).Msg("leave failed")
		return false
	}
	r.logger.Debug().Str("room", scope).Msg("left")
	return true
}

// Joined reports whether scope is joined in the current session.
func (r *Rooms) Joined(scope string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.joined[scope]
	return ok
}

// Active returns the most recently joined scope still held.
func (r *Rooms) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// HandleStatus drops the membership set when the connection goes down,
// since server rooms belong to the socket.
func (r *Rooms) HandleStatus(connected bool) {
	if connected {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.joined) > 0 {
		r.logger.Debug().Int("rooms", len(r.joined)).Msg("connection lost, membership reset")
	}
	r.joined = make(map[string]struct{})
	r.active = ""
}

func (r *Rooms) payload(scope string) any {
	if r.spec.Data == nil {
		return nil
	}
	return r.spec.Data(scope)
}
