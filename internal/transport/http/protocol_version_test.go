package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/marketsync/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	query := url.Values{"v": []string{strconv.Itoa(proto.ProtocolVersion + 1)}}
	conn, _, err := websocket.Dial(ctx, relay.wsURL(query), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + relay.token(t, "alice")}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != proto.FrameTypeError || frame.Error == nil || frame.Error.Code != errCodeUnsupportedVersion {
		t.Fatalf("expected unsupported_version error, got %+v", frame)
	}

	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestProtocolVersionCurrentAccepted(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	query := url.Values{
		"v":     []string{strconv.Itoa(proto.ProtocolVersion)},
		"token": []string{relay.token(t, "alice")},
	}
	conn, _, err := websocket.Dial(ctx, relay.wsURL(query), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	expectEvent(ctx, t, conn, proto.KindConnected)
}
