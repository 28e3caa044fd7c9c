// Package realtimetest provides a scripted WebSocket server for exercising
// real-time clients in tests.
package realtimetest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/marketsync/internal/proto"
)

// Received is an action read from a client together with its handshake.
type Received struct {
	proto.Action
	Header http.Header
	UserID string
}

// Server accepts any number of client connections and records their actions.
type Server struct {
	t   testing.TB
	srv *httptest.Server

	actions chan Received

	mu       sync.Mutex
	sessions map[*websocket.Conn]context.CancelFunc
	accepted int
	reject   bool
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		t:        t,
		actions:  make(chan Received, 256),
		sessions: make(map[*websocket.Conn]context.CancelFunc),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Reject makes the server refuse new upgrades with 503 while set.
func (s *Server) Reject(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = v
}

// Accepted returns how many connections were upgraded so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Sessions returns the number of currently open connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Push sends an event frame to every open connection.
func (s *Server) Push(kind proto.Kind, payload any) {
	s.t.Helper()
	f, err := proto.NewEventFrame(kind, payload)
	if err != nil {
		s.t.Fatalf("encode %s: %v", kind, err)
	}
	s.PushFrame(f)
}

// PushFrame sends a raw frame to every open connection.
func (s *Server) PushFrame(f proto.Frame) {
	s.t.Helper()
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, c := range conns {
		if err := wsjson.Write(ctx, c, f); err != nil {
			s.t.Logf("push %s: %v", f.Event, err)
		}
	}
}

// PushRaw sends text as-is to every open connection.
func (s *Server) PushRaw(text string) {
	s.t.Helper()
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sessions))
	for c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, c := range conns {
		if err := c.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			s.t.Logf("push raw: %v", err)
		}
	}
}

// Drop closes every open connection as if the network went away.
func (s *Server) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, cancel := range s.sessions {
		cancel()
		_ = c.CloseNow()
		delete(s.sessions, c)
	}
}

// NextAction waits for the next action sent by any client.
func (s *Server) NextAction(timeout time.Duration) Received {
	s.t.Helper()
	select {
	case a := <-s.actions:
		return a
	case <-time.After(timeout):
		s.t.Fatalf("no action received within %s", timeout)
		return Received{}
	}
}

// ExpectAction waits for the next action and checks its type.
func (s *Server) ExpectAction(actionType string, timeout time.Duration) Received {
	s.t.Helper()
	a := s.NextAction(timeout)
	if a.Type != actionType {
		s.t.Fatalf("expected action %q, got %q (%s)", actionType, a.Type, a.Data)
	}
	return a
}

// NoAction fails the test if an action arrives within d.
func (s *Server) NoAction(d time.Duration) {
	s.t.Helper()
	select {
	case a := <-s.actions:
		s.t.Fatalf("unexpected action %q (%s)", a.Type, a.Data)
	case <-time.After(d):
	}
}

func (s *Server) Close() {
	s.Drop()
	s.srv.Close()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.sessions[conn] = cancel
	s.accepted++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, conn)
		s.mu.Unlock()
		cancel()
		_ = conn.CloseNow()
	}()

	header := r.Header.Clone()
	userID := r.URL.Query().Get("user_id")
	for {
		var a proto.Action
		if err := wsjson.Read(ctx, conn, &a); err != nil {
			return
		}
		s.actions <- Received{Action: a, Header: header, UserID: userID}
	}
}
