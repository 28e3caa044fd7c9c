package http

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/marketsync/internal/proto"
)

func makeJWT(secret, sub, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if name != "" {
		claims["name"] = name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestWebSocketJWTSubjectOnly(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())

	token, err := makeJWT(testSecret, "user1", "Alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, relay.wsURL(url.Values{"token": []string{token}}), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var greeting proto.ConnectedEvent
	decodeFrame(t, expectEvent(ctx, t, conn, proto.KindConnected), &greeting)
	if greeting.UserID != "user1" {
		t.Fatalf("expected identity from subject, got %+v", greeting)
	}

	sendAction(ctx, t, conn, proto.ActionAuthenticate, proto.AuthenticateData{UserID: "user1"})
	var ack proto.AuthenticatedEvent
	decodeFrame(t, expectEvent(ctx, t, conn, proto.KindAuthenticated), &ack)
	if !ack.Success {
		t.Fatalf("expected success, got %+v", ack)
	}
}

func TestWebSocketJWTRejected(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())

	expired, err := makeJWT(testSecret, "user1", "", -time.Minute)
	if err != nil {
		t.Fatalf("make expired jwt: %v", err)
	}
	foreign, err := makeJWT("other-secret", "user1", "", time.Minute)
	if err != nil {
		t.Fatalf("make foreign jwt: %v", err)
	}

	for name, token := range map[string]string{"expired": expired, "foreign": foreign, "garbage": "abc.def"} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			_, resp, err := websocket.Dial(ctx, relay.wsURL(nil), &websocket.DialOptions{
				HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
			})
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %+v", resp)
			}
		})
	}
}
