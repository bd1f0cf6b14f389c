package main

import "database/sql"

func ensureSchema(db *sql.DB) error {

	// players table: the durable ledger row per player. balance/fuel/stamina
	// are only ever mutated through ApplyResourceDeltas or the claim
	// transaction; pending_rewards and owned_cars ride on the same row so a
	// claim can rewrite all of them in one statement.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			balance BIGINT NOT NULL DEFAULT 0,
			fuel BIGINT NOT NULL DEFAULT 0,
			stamina BIGINT NOT NULL DEFAULT 0,
			owned_cars JSONB NOT NULL DEFAULT '[]',
			pending_rewards JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			last_active_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		ALTER TABLE players
			ADD COLUMN IF NOT EXISTS pending_rewards JSONB NOT NULL DEFAULT '[]';
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		ALTER TABLE players
			ADD COLUMN IF NOT EXISTS owned_cars JSONB NOT NULL DEFAULT '[]';
	`)
	if err != nil {
		return err
	}

	// fleet cars are separate rows because one model can appear several
	// times, each independently assignable to a driver later.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fleet_cars (
			instance_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			car_id TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fleet_cars_player_id
		ON fleet_cars (player_id);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_log (
			id BIGSERIAL PRIMARY KEY,
			player_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			details JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_activity_log_player_id
		ON activity_log (player_id, created_at);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id BIGSERIAL PRIMARY KEY,
			player_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			read_at TIMESTAMPTZ
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_notifications_player_id
		ON notifications (player_id, created_at);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS global_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}
