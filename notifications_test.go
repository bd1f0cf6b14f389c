package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNotificationsResponseEmptyInbox(t *testing.T) {
	raw, err := json.Marshal(NotificationsResponse{OK: true, Notifications: []NotificationItem{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// An empty inbox is an empty array, not an absent field.
	if !strings.Contains(string(raw), `"notifications":[]`) {
		t.Fatalf("empty inbox serialized as %s", raw)
	}
}
