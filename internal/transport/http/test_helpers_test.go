package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/config"
	"github.com/vovakirdan/marketsync/internal/core"
	"github.com/vovakirdan/marketsync/internal/proto"
	"github.com/vovakirdan/marketsync/internal/store"
	"github.com/vovakirdan/marketsync/internal/store/sqlite"
)

const testSecret = "test-secret"

type testRelay struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
}

func testRelayConfig() config.RelayConfig {
	cfg := config.Default().Relay
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.JWTIssuer = ""
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

// startTestRelay runs a hub, a bus and the HTTP server against an in-memory store.
func startTestRelay(t *testing.T, cfg config.RelayConfig) *testRelay {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(st, &disabledLogger)
	bus, err := core.NewBus(&disabledLogger)
	if err != nil {
		t.Fatalf("failed to create bus: %v", err)
	}
	core.ConsumeInto(bus, hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go func() { _ = bus.Run(ctx) }()
	select {
	case <-bus.Running():
	case <-time.After(3 * time.Second):
		t.Fatal("bus did not start")
	}

	authService := auth.NewService(&auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    time.Hour,
	})

	server := NewServer(hub, bus, authService, st, cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)

	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = bus.Close()
		_ = st.Close()
	})

	return &testRelay{ts: ts, store: st, auth: authService}
}

func (r *testRelay) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := r.auth.IssueToken(userID, strings.ToUpper(userID))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (r *testRelay) wsURL(query url.Values) string {
	u := strings.Replace(r.ts.URL, "http", "ws", 1) + "/ws"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// dial connects as userID and consumes the connected greeting.
func (r *testRelay) dial(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, r.wsURL(nil), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + r.token(t, userID)}},
	})
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	expectEvent(ctx, t, conn, proto.KindConnected)
	return conn
}

// dialAuthenticated dials and completes the authenticate handshake.
func (r *testRelay) dialAuthenticated(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn := r.dial(ctx, t, userID)
	sendAction(ctx, t, conn, proto.ActionAuthenticate, proto.AuthenticateData{UserID: userID})
	var ack proto.AuthenticatedEvent
	decodeFrame(t, expectEvent(ctx, t, conn, proto.KindAuthenticated), &ack)
	if !ack.Success {
		t.Fatalf("authenticate %s failed: %s", userID, ack.Error)
	}
	return conn
}

func (r *testRelay) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func sendAction(ctx context.Context, t *testing.T, conn *websocket.Conn, actionType string, data any) {
	t.Helper()
	action, err := proto.NewAction(actionType, data)
	if err != nil {
		t.Fatalf("build action: %v", err)
	}
	if err := wsjson.Write(ctx, conn, action); err != nil {
		t.Fatalf("send %s: %v", actionType, err)
	}
}

// nextFrame returns the next frame that is not a presence broadcast.
func nextFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.Frame {
	t.Helper()
	for {
		var f proto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Event == string(proto.KindUserOnlineStatus) {
			continue
		}
		return f
	}
}

func expectEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, kind proto.Kind) proto.Frame {
	t.Helper()
	var f proto.Frame
	if kind == proto.KindUserOnlineStatus {
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
	} else {
		f = nextFrame(ctx, t, conn)
	}
	if f.Type != proto.FrameTypeEvent || f.Event != string(kind) {
		t.Fatalf("expected %s event, got %+v", kind, f)
	}
	return f
}

func expectError(ctx context.Context, t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	f := nextFrame(ctx, t, conn)
	if f.Type != proto.FrameTypeError || f.Error == nil || f.Error.Code != code {
		t.Fatalf("expected %s error, got %+v", code, f)
	}
}

// expectSilence fails if a non-presence frame arrives within d. The read
// deadline closes conn, so call it last.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	for {
		var f proto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return
		}
		if f.Event != string(proto.KindUserOnlineStatus) {
			t.Fatalf("expected no frame, got %+v", f)
		}
	}
}

func decodeFrame(t *testing.T, f proto.Frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s data: %v", f.Event, err)
	}
}
