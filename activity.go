package main

import (
	"database/sql"
	"encoding/json"
)

// logActivity is the fire-and-forget audit trail behind anti-cheat
// review. Every bid (accepted or rejected), claim and settlement lands
// here; failures are ignored so the audit path never blocks gameplay.
func logActivity(db *sql.DB, playerID string, eventType string, details map[string]interface{}) {
	var payload []byte
	if details != nil {
		payload, _ = json.Marshal(details)
	}
	_, _ = db.Exec(`
		INSERT INTO activity_log (player_id, event_type, details, created_at)
		VALUES ($1, $2, $3, NOW())
	`, playerID, eventType, payload)
}
