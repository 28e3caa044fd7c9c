package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub              *core.Hub
	auth             *auth.Service
	maxMessageBytes  int64
	actionsPerMinute int
	log              *zerolog.Logger
}

// WSOptions tunes a WSHandler.
type WSOptions struct {
	MaxMessageBytes  int64
	ActionsPerMinute int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:              hub,
		auth:             authService,
		maxMessageBytes:  opts.MaxMessageBytes,
		actionsPerMinute: opts.ActionsPerMinute,
		log:              logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	claims, err := h.auth.ValidateToken(requestToken(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws rejected: invalid token")
		writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	if v := r.URL.Query().Get("v"); v != "" && v != strconv.Itoa(proto.ProtocolVersion) {
		h.log.Warn().Str("version", v).Str("user_id", claims.Identity()).Msg("unsupported protocol version")
		_ = wsjson.Write(ctx, conn, errorFrame(errCodeUnsupportedVersion, "protocol version "+v+" is not supported"))
		conn.Close(websocket.StatusPolicyViolation, "unsupported protocol version")
		return
	}

	client := core.NewClient(uuid.NewString(), claims.Identity(), claims.Name)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	log := h.log.With().Str("client_id", client.ID).Str("user_id", client.UserID).Logger()
	log.Info().Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	greeting, _ := proto.NewEventFrame(proto.KindConnected, &proto.ConnectedEvent{UserID: client.UserID})
	if err := wsjson.Write(ctx, conn, greeting); err != nil {
		log.Warn().Err(err).Msg("write greeting")
		return
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, &log)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &log)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}
	log.Info().Int("status", int(status)).Msg("ws disconnected")

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.actionsPerMinute)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, errorFrame(errCodeRateLimited, "too many actions")); err != nil {
				return err
			}
			continue
		}

		var action proto.Action
		if err := json.Unmarshal(data, &action); err != nil || action.Type == "" {
			log.Debug().Err(err).Msg("malformed action")
			if err := wsjson.Write(ctx, conn, errorFrame(errCodeInvalidMessage, "malformed action")); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := actionToCommand(action)
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, errorFrame(protoErr.Code, protoErr.Msg)); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			frame, err := frameFromEvent(event)
			if err != nil {
				log.Error().Err(err).Str("kind", string(event.Kind)).Msg("encode event")
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// requestToken reads the bearer token from the Authorization header or the
// token query parameter.
func requestToken(r *stdhttp.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return r.URL.Query().Get("token")
}
