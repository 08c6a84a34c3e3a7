package cmd

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kozaktomas/face-scan/internal/config"
	"github.com/kozaktomas/face-scan/internal/database"
	"github.com/kozaktomas/face-scan/internal/database/mariadb"
	"github.com/kozaktomas/face-scan/internal/database/mock"
	"github.com/kozaktomas/face-scan/internal/database/postgres"
	"github.com/kozaktomas/face-scan/internal/logging"
	"github.com/kozaktomas/face-scan/internal/prefstore"
	"github.com/kozaktomas/face-scan/internal/routines"
)

// newLogger builds the application logger. The --verbose flag wins over LOG_LEVEL.
func newLogger(cfg *config.Config) (logr.Logger, error) {
	level := cfg.Log.Level
	if verbosity >= 0 {
		level = verbosity
	}
	log, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return logr.Discard(), fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// openResultBackend connects the result store selected by RESULT_STORE.
func openResultBackend(ctx context.Context, cfg *config.Config, log logr.Logger) (*database.Backend, error) {
	switch cfg.Database.Store {
	case config.ResultStorePostgres, "":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required for the %s result store", config.ResultStorePostgres)
		}
		log.V(logging.DEBUG).Info("Connecting to PostgreSQL")
		return postgres.Open(ctx, &cfg.Database)
	case config.ResultStoreMariaDB:
		if cfg.Database.MariaDBURL == "" {
			return nil, fmt.Errorf("MARIADB_URL environment variable is required for the %s result store", config.ResultStoreMariaDB)
		}
		log.V(logging.DEBUG).Info("Connecting to MariaDB")
		return mariadb.Open(ctx, &cfg.Database)
	case config.ResultStoreMemory:
		log.Info("Using in-memory result store, results are lost on exit")
		return mock.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown result store %q", cfg.Database.Store)
	}
}

// openRoutines opens the preference store and the routine repository on top of it.
// The returned store must be closed by the caller.
func openRoutines(cfg *config.Config, log logr.Logger) (*prefstore.Store, *routines.Repository, error) {
	store, err := prefstore.Open(cfg.Preferences.Path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open preference store: %w", err)
	}
	return store, routines.NewRepository(store, log), nil
}
