package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

const (
	NotifOutbid = "auction_outbid"
	NotifWin    = "auction_win"
)

// NotificationCenter writes a durable inbox row and pushes the event to
// any live websocket sessions. Both legs are best-effort: a failed
// insert or a dead socket is logged and swallowed, never surfaced to
// the financial path that triggered it.
type NotificationCenter struct {
	db  *sql.DB
	hub *Hub
}

func NewNotificationCenter(db *sql.DB, hub *Hub) *NotificationCenter {
	return &NotificationCenter{db: db, hub: hub}
}

func (n *NotificationCenter) Notify(playerID string, eventType string, message string, payload map[string]interface{}) {
	var raw []byte
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}

	_, err := n.db.Exec(`
		INSERT INTO notifications (player_id, event_type, message, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, playerID, eventType, message, raw)
	if err != nil {
		log.Println("notification insert failed:", err)
	}

	if n.hub != nil {
		n.hub.Send(playerID, WSOut{Type: eventType, Payload: map[string]interface{}{
			"message": message,
			"data":    payload,
		}})
	}
}

type NotificationItem struct {
	ID        int64           `json:"id"`
	EventType string          `json:"eventType"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	IsRead    bool            `json:"isRead"`
}

func listNotifications(db *sql.DB, playerID string, limit int) ([]NotificationItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, event_type, message, COALESCE(payload, 'null'), created_at, read_at IS NOT NULL
		FROM notifications
		WHERE player_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []NotificationItem
	for rows.Next() {
		var item NotificationItem
		var payload []byte
		if err := rows.Scan(&item.ID, &item.EventType, &item.Message, &payload, &item.CreatedAt, &item.IsRead); err != nil {
			return nil, err
		}
		if string(payload) != "null" {
			item.Payload = payload
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func markNotificationsRead(db *sql.DB, playerID string) error {
	_, err := db.Exec(`
		UPDATE notifications
		SET read_at = NOW()
		WHERE player_id = $1 AND read_at IS NULL
	`, playerID)
	return err
}
