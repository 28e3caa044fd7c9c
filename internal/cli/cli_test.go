package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/app"
	"github.com/vovakirdan/marketsync/internal/auth"
	"github.com/vovakirdan/marketsync/internal/config"
	"github.com/vovakirdan/marketsync/internal/proto"
)

const cliSecret = "cli-secret"

// testEnv points config and session storage at a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MARKETSYNC_SESSION_PATH", filepath.Join(dir, "session.db"))
	t.Setenv("MARKETSYNC_RELAY_JWT_SECRET", cliSecret)
	return filepath.Join(dir, "config.yaml")
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--config", cfgPath}, args...)
	err := New("test").execute(context.Background(), full, &out)
	return out.String(), err
}

func relayToken(t *testing.T, userID, name string) string {
	t.Helper()
	cfg := config.Default().Relay
	cfg.JWTSecret = cliSecret
	token, err := auth.NewService(app.JWTConfig(cfg)).IssueToken(userID, name)
	require.NoError(t, err)
	return token
}

func TestLoginWhoamiLogout(t *testing.T) {
	cfgPath := testEnv(t)

	_, err := run(t, cfgPath, "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)

	out, err := run(t, cfgPath, "login", "--token", relayToken(t, "u1", "Ada"))
	require.NoError(t, err)
	assert.Contains(t, out, "Ada (u1)")

	out, err = run(t, cfgPath, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Ada (u1)\n", out)

	out, err = run(t, cfgPath, "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	_, err = run(t, cfgPath, "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginWithUserObject(t *testing.T) {
	cfgPath := testEnv(t)

	out, err := run(t, cfgPath, "login", "--token", "opaque-token", "--user", `{"_id":"u9","full_name":"Grace"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Grace (u9)")
}

func TestLoginRejectsTokenWithoutIdentity(t *testing.T) {
	cfgPath := testEnv(t)

	_, err := run(t, cfgPath, "login", "--token", "opaque-token")
	require.Error(t, err)

	_, err = run(t, cfgPath, "whoami")
	require.ErrorIs(t, err, errNotLoggedIn)

	_, err = run(t, cfgPath, "login")
	require.Error(t, err)
}

func TestRelayTokenIsValid(t *testing.T) {
	cfgPath := testEnv(t)

	out, err := run(t, cfgPath, "relay", "token", "u7", "--name", "Linus")
	require.NoError(t, err)

	cfg := config.Default().Relay
	cfg.JWTSecret = cliSecret
	claims, err := auth.ValidateToken(app.JWTConfig(cfg), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u7", claims.Identity())
	assert.Equal(t, "Linus", claims.Name)
}

func TestNotificationsCommands(t *testing.T) {
	cfgPath := testEnv(t)
	token := relayToken(t, "u1", "Ada")

	var gotAuth, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notifications", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(api.NotificationList{
			Notifications: []proto.Notification{
				{ID: "n1", Title: "Booking confirmed", Category: "booking", Priority: "high",
					CreatedAt: proto.Timestamp(time.Now().Add(-5 * time.Minute))},
				{ID: "n2", Title: "Payment received", Category: "payment", IsRead: true, CreatedAt: "garbage"},
			},
			Total: 2, UnreadCount: 1, Page: 1, Limit: 20,
		})
	})
	mux.HandleFunc("GET /api/notifications/unread-count", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unread_count":4}`))
	})
	mux.HandleFunc("PUT /api/notifications/read-all", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":3}`))
	})
	mux.HandleFunc("DELETE /api/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Notification not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("MARKETSYNC_API_BASE_URL", srv.URL+"/api")

	_, err := run(t, cfgPath, "notifications", "unread")
	require.ErrorIs(t, err, errNotLoggedIn)

	_, err = run(t, cfgPath, "login", "--token", token)
	require.NoError(t, err)

	out, err := run(t, cfgPath, "notifications", "list", "--unread", "--category", "booking")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, gotAuth)
	assert.Contains(t, gotQuery, "is_read=false")
	assert.Contains(t, gotQuery, "category=booking")
	assert.Contains(t, out, "Booking confirmed")
	assert.Contains(t, out, "5 min ago")
	assert.Contains(t, out, "garbage")
	assert.Contains(t, out, "2 of 2 shown, 1 unread")

	out, err = run(t, cfgPath, "notifications", "list", "-o", "json")
	require.NoError(t, err)
	var list api.NotificationList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list.Notifications, 2)

	out, err = run(t, cfgPath, "notifications", "unread")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	out, err = run(t, cfgPath, "notifications", "read-all")
	require.NoError(t, err)
	assert.Equal(t, "Marked 3 notifications read\n", out)

	_, err = run(t, cfgPath, "notifications", "delete", "n1")
	require.NoError(t, err)

	_, err = run(t, cfgPath, "notifications", "delete", "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))
}
