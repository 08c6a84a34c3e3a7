// Package mariadb stores scan results in MariaDB or MySQL. It has no user or
// session tables, so a server on this backend keeps sessions in memory.
package mariadb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
)

type Pool struct {
	db *sql.DB
}

// NewPool connects using cfg.MariaDBURL. The DSN needs parseTime=true only
// if callers scan DATETIME columns; scan_results stores epoch millis.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	db, err := database.OpenSQL(ctx, "mysql", cfg.MariaDBURL, database.PoolLimits{
		MaxOpen: cfg.MaxOpenConns,
		MaxIdle: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	return &Pool{db: db}, nil
}

func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing MariaDB connection: %w", err)
	}
	return nil
}

// Open connects to MariaDB, creates the scan_results table when missing
// and returns a backend storing scan results only.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*database.Backend, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return database.NewBackend(config.ResultStoreMariaDB, NewScanResultRepository(pool), pool), nil
}
