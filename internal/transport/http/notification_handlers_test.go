package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/store"
)

func seedNotifications(t *testing.T, st store.Store, userID string, n int) {
	t.Helper()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		category := "booking"
		if i%2 == 1 {
			category = "payment"
		}
		if err := st.CreateNotification(context.Background(), &store.Notification{
			ID:        fmt.Sprintf("%s-%d", userID, i),
			UserID:    userID,
			Category:  category,
			Title:     fmt.Sprintf("title %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}
}

func TestNotificationsRequireToken(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())

	resp := relay.do(t, http.MethodGet, "/api/notifications", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.Detail == "" {
		t.Fatalf("expected detail in error body, got %s", resp.Body.String())
	}

	resp = relay.do(t, http.MethodGet, "/api/notifications", "not-a-jwt", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.Code)
	}
}

func TestListNotifications(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	seedNotifications(t, relay.store, "alice", 5)
	seedNotifications(t, relay.store, "bob", 2)
	token := relay.token(t, "alice")

	resp := relay.do(t, http.MethodGet, "/api/notifications?page=2&limit=2", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var page NotificationListResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page.Total != 5 || page.UnreadCount != 5 || page.Page != 2 || page.Limit != 2 {
		t.Fatalf("unexpected page meta: %+v", page)
	}
	if len(page.Notifications) != 2 || page.Notifications[0].ID != "alice-2" {
		t.Fatalf("unexpected page items: %+v", page.Notifications)
	}

	resp = relay.do(t, http.MethodGet, "/api/notifications?category=payment", token, nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode filtered list: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.Limit != 20 {
		t.Fatalf("unexpected filtered page: %+v", page)
	}

	resp = relay.do(t, http.MethodGet, "/api/notifications?limit=1000", token, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", resp.Code)
	}
}

func TestNotificationReadLifecycle(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	seedNotifications(t, relay.store, "alice", 3)
	token := relay.token(t, "alice")

	unread := func() int {
		t.Helper()
		resp := relay.do(t, http.MethodGet, "/api/notifications/unread-count", token, nil)
		var body unreadResponse
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode unread: %v", err)
		}
		return body.UnreadCount
	}

	if got := unread(); got != 3 {
		t.Fatalf("expected 3 unread, got %d", got)
	}

	if resp := relay.do(t, http.MethodPut, "/api/notifications/alice-0/read", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("mark read: %d", resp.Code)
	}
	if resp := relay.do(t, http.MethodPut, "/api/notifications/alice-0/read", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("second mark read should succeed, got %d", resp.Code)
	}
	if resp := relay.do(t, http.MethodPut, "/api/notifications/missing/read", token, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing notification, got %d", resp.Code)
	}
	if got := unread(); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}

	resp := relay.do(t, http.MethodPut, "/api/notifications/read-all", token, nil)
	var count countResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil || count.Count != 2 {
		t.Fatalf("expected read-all count 2, got %s", resp.Body.String())
	}
	if got := unread(); got != 0 {
		t.Fatalf("expected 0 unread, got %d", got)
	}
}

func TestNotificationDeleteAndClear(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	seedNotifications(t, relay.store, "alice", 3)
	seedNotifications(t, relay.store, "bob", 1)
	token := relay.token(t, "alice")

	if resp := relay.do(t, http.MethodDelete, "/api/notifications/alice-1", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("delete: %d", resp.Code)
	}
	if resp := relay.do(t, http.MethodDelete, "/api/notifications/bob-0", token, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("deleting a foreign notification should 404, got %d", resp.Code)
	}

	resp := relay.do(t, http.MethodDelete, "/api/notifications/clear-all", token, nil)
	var count countResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil || count.Count != 2 {
		t.Fatalf("expected clear count 2, got %s", resp.Body.String())
	}

	_, total, err := relay.store.ListNotifications(context.Background(), "bob", store.ListFilter{})
	if err != nil || total != 1 {
		t.Fatalf("clear must not touch bob: total=%d err=%v", total, err)
	}
}

func TestNotificationSettings(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	token := relay.token(t, "alice")

	resp := relay.do(t, http.MethodGet, "/api/notifications/settings/me", token, nil)
	var settings api.Settings
	if err := json.Unmarshal(resp.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !settings.PushEnabled || settings.PromotionalNotifications {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	on, start := true, "22:00"
	resp = relay.do(t, http.MethodPut, "/api/notifications/settings/me", token, api.SettingsUpdate{
		PromotionalNotifications: &on,
		QuietHoursEnabled:        &on,
		QuietHoursStart:          &start,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update settings: %d %s", resp.Code, resp.Body.String())
	}

	resp = relay.do(t, http.MethodGet, "/api/notifications/settings/me", token, nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !settings.PromotionalNotifications || !settings.QuietHoursEnabled || settings.QuietHoursStart != "22:00" || !settings.PushEnabled {
		t.Fatalf("partial update not applied: %+v", settings)
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	token := relay.token(t, "backend")

	cases := map[string]CreateNotificationRequest{
		"missing user":     {Title: "hi"},
		"missing title":    {UserID: "alice"},
		"unknown priority": {UserID: "alice", Title: "hi", Priority: "critical"},
	}
	for name, req := range cases {
		if resp := relay.do(t, http.MethodPost, "/api/notifications", token, req); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestPublishEventValidation(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	token := relay.token(t, "backend")

	cases := map[string]map[string]any{
		"missing room":  {"event": "booking_confirmed", "data": map[string]any{"booking_id": "b1"}},
		"unknown event": {"room": "booking:b1", "event": "booking_exploded", "data": map[string]any{}},
		"array data":    {"room": "booking:b1", "event": "booking_confirmed", "data": []int{1}},
	}
	for name, body := range cases {
		if resp := relay.do(t, http.MethodPost, "/api/events", token, body); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.Code)
		}
	}
}

func TestMessagingEndpoints(t *testing.T) {
	relay := startTestRelay(t, testRelayConfig())
	token := relay.token(t, "alice")

	if resp := relay.do(t, http.MethodPost, "/api/messages/conversations/c1/mark-read", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("mark conversation read: %d", resp.Code)
	}
	if resp := relay.do(t, http.MethodPut, "/api/messages/messages/m1/status?status=seen", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("update status: %d", resp.Code)
	}
	if resp := relay.do(t, http.MethodPut, "/api/messages/messages/m1/status?status=lost", token, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.Code)
	}

	resp := relay.do(t, http.MethodGet, "/api/messages/conversations/unread-count", token, nil)
	var body unreadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.UnreadCount != 0 {
		t.Fatalf("unexpected unread body %s", resp.Body.String())
	}
}
