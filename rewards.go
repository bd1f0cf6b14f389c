package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const RewardKindCar = "car"

const (
	DispositionGarage = "toGarage"
	DispositionFleet  = "toFleet"
	DispositionSell   = "sell"
)

var (
	errPlayerNotFound     = errors.New("PLAYER_NOT_FOUND")
	errInvalidIndex       = errors.New("INVALID_INDEX")
	errInvalidDisposition = errors.New("INVALID_DISPOSITION")
	errRewardNotFleetable = errors.New("REWARD_NOT_FLEETABLE")
	errUnknownRewardKind  = errors.New("UNKNOWN_REWARD_KIND")
)

// PendingReward is a tagged variant: Kind discriminates, the car fields
// are only meaningful for RewardKindCar. Garage and fleet dispositions
// switch on Kind and reject kinds they cannot place; sell only consults
// SellPrice, so any kind that carries a price can be sold.
type PendingReward struct {
	Kind          string    `json:"kind"`
	CarID         string    `json:"carId,omitempty"`
	Name          string    `json:"name"`
	Image         string    `json:"image,omitempty"`
	PurchasePrice int64     `json:"purchasePrice"`
	SellPrice     int64     `json:"sellPrice"`
	WonAt         time.Time `json:"wonAt"`
	BidAmount     int64     `json:"bidAmount,omitempty"`
}

type FleetCar struct {
	InstanceID string    `json:"instanceId"`
	CarID      string    `json:"carId"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

func carReward(car CarMeta, wonAt time.Time, bidAmount int64) PendingReward {
	return PendingReward{
		Kind:          RewardKindCar,
		CarID:         car.ID,
		Name:          car.Name,
		Image:         car.Image,
		PurchasePrice: car.PurchasePrice,
		SellPrice:     sellPriceFor(car.PurchasePrice),
		WonAt:         wonAt,
		BidAmount:     bidAmount,
	}
}

// appendPendingReward pushes one reward onto the player's pending list.
// Shared by auction settlement and lootbox grants.
func appendPendingReward(db *sql.DB, playerID string, reward PendingReward) error {
	payload, err := json.Marshal([]PendingReward{reward})
	if err != nil {
		return err
	}

	result, err := db.Exec(`
		UPDATE players
		SET pending_rewards = pending_rewards || $2::jsonb
		WHERE player_id = $1
	`, playerID, payload)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errPlayerNotFound
	}

	invalidatePlayer(playerID)
	return nil
}

// claimEffect is what a successful disposition does to the aggregate.
type claimEffect struct {
	Claimed      PendingReward
	Remaining    []PendingReward
	OwnedCars    []string
	BalanceDelta int64
	FleetCar     *FleetCar
}

// applyClaim validates and computes a claim against an in-memory copy
// of the aggregate. It never mutates its inputs; the caller persists
// the effect in a single combined write.
func applyClaim(pending []PendingReward, ownedCars []string, index int, disposition string, now time.Time) (claimEffect, error) {
	if index < 0 || index >= len(pending) {
		return claimEffect{}, errInvalidIndex
	}

	reward := pending[index]
	effect := claimEffect{
		Claimed:   reward,
		OwnedCars: append([]string(nil), ownedCars...),
	}

	switch disposition {
	case DispositionGarage:
		switch reward.Kind {
		case RewardKindCar:
			// Dedup: an already-owned model is a no-op for the garage but
			// the reward is still consumed.
			owned := false
			for _, id := range effect.OwnedCars {
				if id == reward.CarID {
					owned = true
					break
				}
			}
			if !owned {
				effect.OwnedCars = append(effect.OwnedCars, reward.CarID)
			}
		default:
			return claimEffect{}, errUnknownRewardKind
		}

	case DispositionFleet:
		if reward.Kind != RewardKindCar {
			return claimEffect{}, errRewardNotFleetable
		}
		effect.FleetCar = &FleetCar{
			InstanceID: uuid.NewString(),
			CarID:      reward.CarID,
			AcquiredAt: now.UTC(),
		}

	case DispositionSell:
		effect.BalanceDelta = reward.SellPrice

	default:
		return claimEffect{}, errInvalidDisposition
	}

	effect.Remaining = make([]PendingReward, 0, len(pending)-1)
	effect.Remaining = append(effect.Remaining, pending[:index]...)
	effect.Remaining = append(effect.Remaining, pending[index+1:]...)
	return effect, nil
}

type ClaimResult struct {
	Claimed        PendingReward
	Disposition    string
	Balance        int64
	OwnedCars      []string
	PendingRewards []PendingReward
	FleetCar       *FleetCar
	SoldFor        int64
}

// ClaimPendingReward removes exactly the addressed entry and applies
// the disposition. Balance, garage, fleet and the pending list are
// written inside one transaction with the player row locked, so there
// is no window where the reward is consumed but its effect missing.
func ClaimPendingReward(db *sql.DB, playerID string, index int, disposition string) (*ClaimResult, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance int64
	var ownedRaw, pendingRaw []byte
	err = tx.QueryRow(`
		SELECT balance, owned_cars, pending_rewards
		FROM players
		WHERE player_id = $1
		FOR UPDATE
	`, playerID).Scan(&balance, &ownedRaw, &pendingRaw)
	if err == sql.ErrNoRows {
		return nil, errPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	var ownedCars []string
	var pending []PendingReward
	if err := json.Unmarshal(ownedRaw, &ownedCars); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pendingRaw, &pending); err != nil {
		return nil, err
	}

	effect, err := applyClaim(pending, ownedCars, index, disposition, time.Now())
	if err != nil {
		return nil, err
	}

	newBalance := balance + effect.BalanceDelta
	ownedPayload, err := json.Marshal(effect.OwnedCars)
	if err != nil {
		return nil, err
	}
	remainingPayload, err := json.Marshal(effect.Remaining)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE players
		SET balance = $2,
			owned_cars = $3,
			pending_rewards = $4,
			last_active_at = NOW()
		WHERE player_id = $1
	`, playerID, newBalance, ownedPayload, remainingPayload)
	if err != nil {
		return nil, err
	}

	if effect.FleetCar != nil {
		_, err = tx.Exec(`
			INSERT INTO fleet_cars (instance_id, player_id, car_id, acquired_at)
			VALUES ($1, $2, $3, $4)
		`, effect.FleetCar.InstanceID, playerID, effect.FleetCar.CarID, effect.FleetCar.AcquiredAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invalidatePlayer(playerID)
	logActivity(db, playerID, "reward_claimed", map[string]interface{}{
		"disposition": disposition,
		"kind":        effect.Claimed.Kind,
		"carId":       effect.Claimed.CarID,
		"soldFor":     effect.BalanceDelta,
	})

	return &ClaimResult{
		Claimed:        effect.Claimed,
		Disposition:    disposition,
		Balance:        newBalance,
		OwnedCars:      effect.OwnedCars,
		PendingRewards: effect.Remaining,
		FleetCar:       effect.FleetCar,
		SoldFor:        effect.BalanceDelta,
	}, nil
}

func listFleet(db *sql.DB, playerID string) ([]FleetCar, error) {
	rows, err := db.Query(`
		SELECT instance_id, car_id, acquired_at
		FROM fleet_cars
		WHERE player_id = $1
		ORDER BY acquired_at ASC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fleet []FleetCar
	for rows.Next() {
		var fc FleetCar
		if err := rows.Scan(&fc.InstanceID, &fc.CarID, &fc.AcquiredAt); err != nil {
			return nil, err
		}
		fleet = append(fleet, fc)
	}
	return fleet, rows.Err()
}
