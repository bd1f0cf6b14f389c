package main

import (
	"database/sql"
)

type ResourceDeltas struct {
	Balance int64
	Fuel    int64
	Stamina int64
}

// ApplyResourceDeltas applies all deltas in one conditional statement:
// the storage layer evaluates the non-negativity guard, so there is no
// read-then-write window for concurrent requests to race through.
// changed=false means the guard failed (or the player row is missing);
// callers treat it as "not enough resource", never as a server fault.
func ApplyResourceDeltas(db *sql.DB, playerID string, d ResourceDeltas) (bool, error) {
	result, err := db.Exec(`
		UPDATE players
		SET balance = balance + $2,
			fuel = fuel + $3,
			stamina = stamina + $4,
			last_active_at = NOW()
		WHERE player_id = $1
			AND balance + $2 >= 0
			AND fuel + $3 >= 0
			AND stamina + $4 >= 0
	`, playerID, d.Balance, d.Fuel, d.Stamina)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	invalidatePlayer(playerID)
	return true, nil
}

// pgLedger adapts the Postgres ledger to the interfaces the auction
// state machine bids and settles against.
type pgLedger struct {
	db *sql.DB
}

func (l *pgLedger) TryDebit(playerID string, amount int64) (bool, error) {
	return ApplyResourceDeltas(l.db, playerID, ResourceDeltas{Balance: -amount})
}

func (l *pgLedger) Credit(playerID string, amount int64) (bool, error) {
	return ApplyResourceDeltas(l.db, playerID, ResourceDeltas{Balance: amount})
}

func (l *pgLedger) AppendReward(playerID string, reward PendingReward) error {
	return appendPendingReward(l.db, playerID, reward)
}
