package main

import (
	"database/sql"
	"strconv"
	"strings"
	"sync"
	"time"
)

type AuctionSettings struct {
	StartingBid     int64
	MinIncrement    int64
	DurationSeconds int
	IntervalSeconds int
	RewardOverride  string
}

var (
	settingsMu     sync.RWMutex
	cachedSettings = AuctionSettings{
		StartingBid:     5000,
		MinIncrement:    100,
		DurationSeconds: 300,
		IntervalSeconds: 900,
		RewardOverride:  "",
	}
)

func LoadAuctionSettings(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT key, value
		FROM global_settings
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	settingsMu.Lock()
	defer settingsMu.Unlock()

	for rows.Next() {
		var key string
		var value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		applyAuctionSetting(&cachedSettings, key, value)
	}
	return rows.Err()
}

func GetAuctionSettings() AuctionSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return cachedSettings
}

// UpdateAuctionSettings persists and applies operator changes. Changes
// take effect on the next round; an in-progress round keeps the window
// it was started with.
func UpdateAuctionSettings(db *sql.DB, updates map[string]string) (AuctionSettings, error) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	for key, value := range updates {
		applyAuctionSetting(&cachedSettings, key, value)
		_, err := db.Exec(`
			INSERT INTO global_settings (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		`, key, value)
		if err != nil {
			return cachedSettings, err
		}
	}
	return cachedSettings, nil
}

func applyAuctionSetting(target *AuctionSettings, key string, value string) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "auction_starting_bid":
		if v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && v >= 0 {
			target.StartingBid = v
		}
	case "auction_min_increment":
		if v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && v > 0 {
			target.MinIncrement = v
		}
	case "auction_duration_seconds":
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
			target.DurationSeconds = v
		}
	case "auction_interval_seconds":
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
			target.IntervalSeconds = v
		}
	case "auction_reward_override":
		// Empty clears the override and returns rounds to random picks.
		target.RewardOverride = strings.TrimSpace(value)
	}
}

func (s AuctionSettings) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

func (s AuctionSettings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
