package main

import (
	"database/sql"
	"encoding/json"
	"sync"
)

type Player struct {
	PlayerID       string
	DisplayName    string
	Balance        int64
	Fuel           int64
	Stamina        int64
	OwnedCars      []string
	PendingRewards []PendingReward
}

const (
	starterBalance = 10000
	starterFuel    = 100
	starterStamina = 100
)

// Read-through cache of player aggregates. Every write path (atomic
// deltas, reward appends, claims) must call invalidatePlayer so a read
// after a refund or debit never serves a stale snapshot.
var playerCache = struct {
	sync.RWMutex
	m map[string]*Player
}{m: make(map[string]*Player)}

// cachedPlayer hands out a copy. Handlers run concurrently and one of
// them patching a field (display name updates) must never be visible
// through another handler's aggregate.
func cachedPlayer(playerID string) *Player {
	playerCache.RLock()
	defer playerCache.RUnlock()
	p, ok := playerCache.m[playerID]
	if !ok {
		return nil
	}
	cp := *p
	cp.OwnedCars = append([]string(nil), p.OwnedCars...)
	cp.PendingRewards = append([]PendingReward(nil), p.PendingRewards...)
	return &cp
}

func cachePlayer(p *Player) {
	cp := *p
	cp.OwnedCars = append([]string(nil), p.OwnedCars...)
	cp.PendingRewards = append([]PendingReward(nil), p.PendingRewards...)
	playerCache.Lock()
	playerCache.m[cp.PlayerID] = &cp
	playerCache.Unlock()
}

func invalidatePlayer(playerID string) {
	playerCache.Lock()
	delete(playerCache.m, playerID)
	playerCache.Unlock()
}

// LoadPlayer returns (nil, nil) for an unknown player.
func LoadPlayer(db *sql.DB, playerID string) (*Player, error) {
	if p := cachedPlayer(playerID); p != nil {
		return p, nil
	}

	p, err := fetchPlayer(db, playerID)
	if err != nil || p == nil {
		return p, err
	}
	cachePlayer(p)
	return p, nil
}

func fetchPlayer(db *sql.DB, playerID string) (*Player, error) {
	var p Player
	var ownedRaw, pendingRaw []byte

	err := db.QueryRow(`
		SELECT player_id, display_name, balance, fuel, stamina, owned_cars, pending_rewards
		FROM players
		WHERE player_id = $1
	`, playerID).Scan(&p.PlayerID, &p.DisplayName, &p.Balance, &p.Fuel, &p.Stamina, &ownedRaw, &pendingRaw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ownedRaw, &p.OwnedCars); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pendingRaw, &p.PendingRewards); err != nil {
		return nil, err
	}
	return &p, nil
}

func LoadOrCreatePlayer(db *sql.DB, playerID string, displayName string) (*Player, error) {
	p, err := LoadPlayer(db, playerID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if displayName != "" && displayName != p.DisplayName {
			_, err = db.Exec(`
				UPDATE players
				SET display_name = $2, last_active_at = NOW()
				WHERE player_id = $1
			`, playerID, displayName)
			if err != nil {
				return nil, err
			}
			invalidatePlayer(playerID)
			p.DisplayName = displayName
		} else {
			_, _ = db.Exec(`
				UPDATE players
				SET last_active_at = NOW()
				WHERE player_id = $1
			`, playerID)
		}
		return p, nil
	}

	_, err = db.Exec(`
		INSERT INTO players (
			player_id,
			display_name,
			balance,
			fuel,
			stamina,
			created_at,
			last_active_at
		)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (player_id) DO NOTHING
	`, playerID, displayName, starterBalance, starterFuel, starterStamina)
	if err != nil {
		return nil, err
	}

	return LoadPlayer(db, playerID)
}
