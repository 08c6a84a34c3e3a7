package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
	_ "github.com/lib/pq"
)

// Pool wraps the PostgreSQL handle shared by the repositories.
type Pool struct {
	db *sql.DB
}

func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	db, err := database.OpenSQL(ctx, "postgres", cfg.URL, database.PoolLimits{
		MaxOpen: cfg.MaxOpenConns,
		MaxIdle: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing PostgreSQL connection: %w", err)
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Open connects to PostgreSQL, applies pending migrations and returns
// a backend with scan results, users and sessions wired to the pool.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*database.Backend, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if _, err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	backend := database.NewBackend(config.ResultStorePostgres, NewScanResultRepository(pool), pool)
	backend.Users = NewUserRepository(pool)
	backend.Sessions = NewSessionRepository(pool)
	return backend, nil
}
