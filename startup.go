package main

import (
	"context"
	"database/sql"
)

// The auction round loop must run on exactly one instance: the state
// machine is a process-wide singleton, so a second loop would hold a
// second, divergent round. The pg advisory lock elects that leader;
// followers still serve reads and ledger updates (the conditional
// writes are safe cross-instance) but never start rounds.
const leaderAdvisoryLockID int64 = 318227041

var leaderLockConn *sql.Conn

func acquireLeaderLock(ctx context.Context, db *sql.DB) (*sql.Conn, bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, leaderAdvisoryLockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return conn, true, nil
}
