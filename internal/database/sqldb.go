package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pingTimeout = 10 * time.Second

// PoolLimits bounds a database/sql connection pool. Zero values keep the
// database/sql defaults.
type PoolLimits struct {
	MaxOpen int
	MaxIdle int
}

// OpenSQL opens dsn with the registered driver, applies limits and pings the
// server before returning. The handle is closed again when the ping fails.
func OpenSQL(ctx context.Context, driver, dsn string, limits PoolLimits) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s connection string is required", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if limits.MaxOpen > 0 {
		db.SetMaxOpenConns(limits.MaxOpen)
	}
	if limits.MaxIdle > 0 {
		db.SetMaxIdleConns(limits.MaxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to ping %s: %w", driver, err), db.Close())
	}
	return db, nil
}
