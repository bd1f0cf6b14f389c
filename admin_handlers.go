package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

type AdminAuctionSettingsRequest struct {
	StartingBid     *int64  `json:"startingBid,omitempty"`
	MinIncrement    *int64  `json:"minIncrement,omitempty"`
	DurationSeconds *int    `json:"durationSeconds,omitempty"`
	IntervalSeconds *int    `json:"intervalSeconds,omitempty"`
	RewardOverride  *string `json:"rewardOverride,omitempty"`
}

type AdminAuctionSettingsResponse struct {
	OK              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	StartingBid     int64  `json:"startingBid,omitempty"`
	MinIncrement    int64  `json:"minIncrement,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	IntervalSeconds int    `json:"intervalSeconds,omitempty"`
	RewardOverride  string `json:"rewardOverride,omitempty"`
}

func settingsView(s AuctionSettings) AdminAuctionSettingsResponse {
	return AdminAuctionSettingsResponse{
		OK:              true,
		StartingBid:     s.StartingBid,
		MinIncrement:    s.MinIncrement,
		DurationSeconds: s.DurationSeconds,
		IntervalSeconds: s.IntervalSeconds,
		RewardOverride:  s.RewardOverride,
	}
}

// adminAuctionSettingsHandler reads and tunes round parameters. Updates
// only shape future rounds; the in-flight round keeps its window.
func adminAuctionSettingsHandler(db *sql.DB, catalog *Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(settingsView(GetAuctionSettings()))

		case http.MethodPost:
			var req AdminAuctionSettingsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INVALID_REQUEST"})
				return
			}

			updates := map[string]string{}
			if req.StartingBid != nil {
				if *req.StartingBid < 0 {
					json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INVALID_STARTING_BID"})
					return
				}
				updates["auction_starting_bid"] = strconv.FormatInt(*req.StartingBid, 10)
			}
			if req.MinIncrement != nil {
				if *req.MinIncrement <= 0 {
					json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INVALID_MIN_INCREMENT"})
					return
				}
				updates["auction_min_increment"] = strconv.FormatInt(*req.MinIncrement, 10)
			}
			if req.DurationSeconds != nil {
				if *req.DurationSeconds <= 0 {
					json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INVALID_DURATION"})
					return
				}
				updates["auction_duration_seconds"] = strconv.Itoa(*req.DurationSeconds)
			}
			if req.IntervalSeconds != nil {
				if *req.IntervalSeconds <= 0 {
					json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INVALID_INTERVAL"})
					return
				}
				updates["auction_interval_seconds"] = strconv.Itoa(*req.IntervalSeconds)
			}
			if req.RewardOverride != nil {
				if *req.RewardOverride != "" {
					if _, ok := catalog.Meta(*req.RewardOverride); !ok {
						json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "UNKNOWN_CAR"})
						return
					}
				}
				updates["auction_reward_override"] = *req.RewardOverride
			}

			if len(updates) == 0 {
				json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "NO_CHANGES"})
				return
			}

			settings, err := UpdateAuctionSettings(db, updates)
			if err != nil {
				log.Println("settings update failed:", err)
				json.NewEncoder(w).Encode(AdminAuctionSettingsResponse{OK: false, Error: "INTERNAL_ERROR"})
				return
			}
			json.NewEncoder(w).Encode(settingsView(settings))

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}
