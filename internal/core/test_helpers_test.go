package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/marketsync/internal/proto"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind proto.Kind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind && ev.Error == nil {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustError(t *testing.T, ch <-chan *Event, code string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Error != nil && ev.Error.Code == code {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected error %q not received", code)
	return nil
}

func mustNotReceive(t *testing.T, ch <-chan *Event, kind proto.Kind, d time.Duration) {
	t.Helper()

	deadline := time.After(d)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func startHub(t *testing.T, marker ReadMarker) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(marker, nil)
	go hub.Run(ctx)
	return hub
}

// connect registers an authenticated client for userID.
func connect(t *testing.T, hub *Hub, id, userID string) *Client {
	t.Helper()
	c := NewClient(id, userID, "")
	hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAuthenticate, UserID: userID}
	ev := mustEvent(t, c.Events, proto.KindAuthenticated)
	if !ev.Payload.(*proto.AuthenticatedEvent).Success {
		t.Fatalf("authenticate failed: %+v", ev.Payload)
	}
	return c
}

type fakeMarker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMarker) MarkRead(_ context.Context, userID, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"/"+id)
	return true, nil
}
