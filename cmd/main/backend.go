package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/CTAG07/babbler/pkg/store"
)

// sqlBackend owns both the prepared statements and the database handle.
type sqlBackend struct {
	*store.SQLStore
	db *sql.DB
}

func (b *sqlBackend) Close() error {
	return errors.Join(b.SQLStore.Close(), b.db.Close())
}

// openStore opens the backend selected in the config.
func openStore(config *StoreConfig, logger *slog.Logger) (store.Store, error) {
	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	switch config.Backend {
	case backendBolt:
		st, err := store.NewBoltStore(config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		st.SetLogger(logger)
		logger.Debug("Opened bolt store", "path", config.BoltPath)
		return st, nil

	case backendSQLite:
		db, err := initDB(config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err = store.SetupSchema(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to setup model schema: %w", err)
		}
		st, err := store.NewSQLStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare model statements: %w", err)
		}
		st.SetLogger(logger)
		logger.Debug("Opened sqlite store", "driver", sqliteDriver, "path", config.SQLitePath)
		return &sqlBackend{SQLStore: st, db: db}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}
