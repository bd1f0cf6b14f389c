package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"
)

const (
	farePerKm         = 120
	fuelPricePerLiter = 35
	lootboxPrice      = 2500
	maxRideDistanceKm = 200
	maxFuelPurchase   = 500
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, errAuctionNotActive),
		errors.Is(err, errBidTooLow),
		errors.Is(err, errNotEnoughBalance),
		errors.Is(err, errPlayerNotFound),
		errors.Is(err, errInvalidIndex),
		errors.Is(err, errInvalidDisposition),
		errors.Is(err, errRewardNotFleetable),
		errors.Is(err, errUnknownRewardKind):
		return err.Error()
	default:
		return "INTERNAL_ERROR"
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func auctionHandler(house *AuctionHouse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(house.Snapshot())
	}
}

func bidHandler(db *sql.DB, house *AuctionHouse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req BidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}
		if req.Amount <= 0 {
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "INVALID_AMOUNT"})
			return
		}

		player, err := LoadPlayer(db, req.PlayerID)
		if err != nil {
			log.Println("bid: load player failed:", err)
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if player == nil {
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "PLAYER_NOT_FOUND"})
			return
		}

		displayName := req.DisplayName
		if !isValidDisplayName(displayName) {
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: "INVALID_DISPLAY_NAME"})
			return
		}
		if displayName == "" {
			displayName = player.DisplayName
		}

		snap, err := house.PlaceBid(req.PlayerID, displayName, req.Amount)
		if err != nil {
			code := errorCode(err)
			if code == "INTERNAL_ERROR" {
				log.Println("bid failed:", err)
			}
			json.NewEncoder(w).Encode(BidResponse{OK: false, Error: code, Auction: &snap})
			return
		}

		// The debit invalidated the cache; this read is fresh.
		balance := player.Balance - req.Amount
		if fresh, err := LoadPlayer(db, req.PlayerID); err == nil && fresh != nil {
			balance = fresh.Balance
		}

		json.NewEncoder(w).Encode(BidResponse{
			OK:            true,
			Auction:       &snap,
			PlayerBalance: balance,
		})
	}
}

func playerHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("playerId")
		if !isValidPlayerID(playerID) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		displayName := r.URL.Query().Get("displayName")
		if !isValidDisplayName(displayName) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		player, err := LoadOrCreatePlayer(db, playerID, displayName)
		if err != nil {
			log.Println("Failed to load/create player:", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		fleet, err := listFleet(db, playerID)
		if err != nil {
			log.Println("Failed to list fleet:", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		json.NewEncoder(w).Encode(PlayerResponse{
			OK:             true,
			PlayerID:       player.PlayerID,
			DisplayName:    player.DisplayName,
			Balance:        player.Balance,
			Fuel:           player.Fuel,
			Stamina:        player.Stamina,
			OwnedCars:      player.OwnedCars,
			Fleet:          fleet,
			PendingRewards: player.PendingRewards,
		})
	}
}

func rewardsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("playerId")
		if !isValidPlayerID(playerID) {
			json.NewEncoder(w).Encode(RewardsResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}

		player, err := LoadPlayer(db, playerID)
		if err != nil {
			log.Println("rewards: load player failed:", err)
			json.NewEncoder(w).Encode(RewardsResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if player == nil {
			json.NewEncoder(w).Encode(RewardsResponse{OK: false, Error: "PLAYER_NOT_FOUND"})
			return
		}

		rewards := player.PendingRewards
		if rewards == nil {
			rewards = []PendingReward{}
		}
		json.NewEncoder(w).Encode(RewardsResponse{OK: true, PendingRewards: rewards})
	}
}

func claimRewardHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req ClaimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(ClaimResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(ClaimResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}
		if req.Index == nil {
			json.NewEncoder(w).Encode(ClaimResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}

		result, err := ClaimPendingReward(db, req.PlayerID, *req.Index, req.Disposition)
		if err != nil {
			code := errorCode(err)
			if code == "INTERNAL_ERROR" {
				log.Println("claim failed:", err)
			}
			json.NewEncoder(w).Encode(ClaimResponse{OK: false, Error: code})
			return
		}

		json.NewEncoder(w).Encode(ClaimResponse{
			OK:             true,
			Claimed:        &result.Claimed,
			Disposition:    result.Disposition,
			Balance:        result.Balance,
			OwnedCars:      result.OwnedCars,
			PendingRewards: result.PendingRewards,
			FleetCar:       result.FleetCar,
			SoldFor:        result.SoldFor,
		})
	}
}

func rideCompleteHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req RideCompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}
		if req.DistanceKm <= 0 || req.DistanceKm > maxRideDistanceKm {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "INVALID_DISTANCE"})
			return
		}

		player, err := LoadPlayer(db, req.PlayerID)
		if err != nil {
			log.Println("ride: load player failed:", err)
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if player == nil {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "PLAYER_NOT_FOUND"})
			return
		}

		fare := int64(req.DistanceKm) * farePerKm
		fuelCost := int64(req.DistanceKm)
		staminaCost := int64(1 + req.DistanceKm/10)

		changed, err := ApplyResourceDeltas(db, req.PlayerID, ResourceDeltas{
			Balance: fare,
			Fuel:    -fuelCost,
			Stamina: -staminaCost,
		})
		if err != nil {
			log.Println("ride: apply deltas failed:", err)
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if !changed {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: false, Error: "NOT_ENOUGH_RESOURCES"})
			return
		}

		logActivity(db, req.PlayerID, "ride_complete", map[string]interface{}{
			"distanceKm": req.DistanceKm,
			"fare":       fare,
		})

		fresh, err := LoadPlayer(db, req.PlayerID)
		if err != nil || fresh == nil {
			json.NewEncoder(w).Encode(RideCompleteResponse{OK: true, Fare: fare})
			return
		}
		json.NewEncoder(w).Encode(RideCompleteResponse{
			OK:      true,
			Fare:    fare,
			Balance: fresh.Balance,
			Fuel:    fresh.Fuel,
			Stamina: fresh.Stamina,
		})
	}
}

func buyFuelHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req BuyFuelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}
		if req.Liters <= 0 || req.Liters > maxFuelPurchase {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "INVALID_AMOUNT"})
			return
		}

		player, err := LoadPlayer(db, req.PlayerID)
		if err != nil {
			log.Println("fuel: load player failed:", err)
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if player == nil {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "PLAYER_NOT_FOUND"})
			return
		}

		cost := int64(req.Liters) * fuelPricePerLiter
		changed, err := ApplyResourceDeltas(db, req.PlayerID, ResourceDeltas{
			Balance: -cost,
			Fuel:    int64(req.Liters),
		})
		if err != nil {
			log.Println("fuel: apply deltas failed:", err)
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if !changed {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: false, Error: "NOT_ENOUGH_BALANCE"})
			return
		}

		logActivity(db, req.PlayerID, "fuel_purchase", map[string]interface{}{
			"liters": req.Liters,
			"cost":   cost,
		})

		fresh, err := LoadPlayer(db, req.PlayerID)
		if err != nil || fresh == nil {
			json.NewEncoder(w).Encode(BuyFuelResponse{OK: true, Cost: cost})
			return
		}
		json.NewEncoder(w).Encode(BuyFuelResponse{
			OK:      true,
			Cost:    cost,
			Balance: fresh.Balance,
			Fuel:    fresh.Fuel,
		})
	}
}

func lootboxHandler(db *sql.DB, catalog *Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req LootboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}

		player, err := LoadPlayer(db, req.PlayerID)
		if err != nil {
			log.Println("lootbox: load player failed:", err)
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if player == nil {
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "PLAYER_NOT_FOUND"})
			return
		}

		changed, err := ApplyResourceDeltas(db, req.PlayerID, ResourceDeltas{Balance: -lootboxPrice})
		if err != nil {
			log.Println("lootbox: debit failed:", err)
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if !changed {
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "NOT_ENOUGH_BALANCE"})
			return
		}

		car, ok := catalog.Pick("")
		if !ok {
			// Give the debit back rather than charge for nothing.
			_, _ = ApplyResourceDeltas(db, req.PlayerID, ResourceDeltas{Balance: lootboxPrice})
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}

		reward := carReward(car, time.Now().UTC(), 0)
		if err := appendPendingReward(db, req.PlayerID, reward); err != nil {
			log.Println("lootbox: reward append failed:", err)
			_, _ = ApplyResourceDeltas(db, req.PlayerID, ResourceDeltas{Balance: lootboxPrice})
			json.NewEncoder(w).Encode(LootboxResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}

		logActivity(db, req.PlayerID, "lootbox_open", map[string]interface{}{
			"carId": car.ID,
			"price": lootboxPrice,
		})

		fresh, _ := LoadPlayer(db, req.PlayerID)
		resp := LootboxResponse{OK: true, PricePaid: lootboxPrice, Reward: &reward}
		if fresh != nil {
			resp.Balance = fresh.Balance
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func notificationsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := r.URL.Query().Get("playerId")
		if !isValidPlayerID(playerID) {
			json.NewEncoder(w).Encode(NotificationsResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}

		items, err := listNotifications(db, playerID, limit)
		if err != nil {
			log.Println("notifications query failed:", err)
			json.NewEncoder(w).Encode(NotificationsResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if items == nil {
			items = []NotificationItem{}
		}
		json.NewEncoder(w).Encode(NotificationsResponse{OK: true, Notifications: items})
	}
}

func notificationsReadHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req NotificationsReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			json.NewEncoder(w).Encode(SimpleResponse{OK: false, Error: "INVALID_REQUEST"})
			return
		}
		if !isValidPlayerID(req.PlayerID) {
			json.NewEncoder(w).Encode(SimpleResponse{OK: false, Error: "INVALID_PLAYER_ID"})
			return
		}

		if err := markNotificationsRead(db, req.PlayerID); err != nil {
			log.Println("notifications mark-read failed:", err)
			json.NewEncoder(w).Encode(SimpleResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		json.NewEncoder(w).Encode(SimpleResponse{OK: true})
	}
}
