package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultMaxConns = 25

// poolLimits derives the pool caps from the configured maximum. Roughly
// half the pool stays warm as idle connections; the rest drains off-peak.
func poolLimits(maxConns int) (open, idle int) {
	if maxConns < 1 {
		maxConns = defaultMaxConns
	}
	return maxConns, (maxConns + 1) / 2
}

// Open connects to Postgres and sizes the pool for the editing workload:
// many short request-scoped queries, no long-running transactions. maxConns
// caps open connections; values below 1 fall back to the default.
func Open(ctx context.Context, databaseURL string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	open, idle := poolLimits(maxConns)
	db.SetMaxOpenConns(open)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}
