package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// SetupSchema initializes the model table in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    model_size INTEGER NOT NULL,
    serialized TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// SQLStore is a Store backed by a SQL database. Timestamps are kept as unix
// milliseconds so that any SQLite driver round-trips them identically.
type SQLStore struct {
	db         *sql.DB
	stmtSave   *sql.Stmt
	stmtLoad   *sql.Stmt
	stmtList   *sql.Stmt
	stmtDelete *sql.Stmt
	now        func() time.Time
	logger     *slog.Logger
}

// NewSQLStore creates a SQLStore on a database already initialized with
// SetupSchema. It pre-compiles all statements, returning an error if any
// preparation fails. The caller keeps ownership of db.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	stmts, err := prepareAll(db.Prepare,
		`
INSERT INTO markov_models (model_name, model_order, model_size, serialized, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(model_name) DO UPDATE SET
    model_order = excluded.model_order,
    model_size = excluded.model_size,
    serialized = excluded.serialized,
    updated_at = excluded.updated_at;`,
		`SELECT model_name, model_order, model_size, serialized, created_at, updated_at FROM markov_models WHERE model_name = ?;`,
		`SELECT model_name, model_order, model_size, created_at, updated_at FROM markov_models ORDER BY model_name;`,
		`DELETE FROM markov_models WHERE model_name = ?;`,
	)
	if err != nil {
		return nil, err
	}
	stmtSave, stmtLoad, stmtList, stmtDelete := stmts[0], stmts[1], stmts[2], stmts[3]

	return &SQLStore{
		db:         db,
		stmtSave:   stmtSave,
		stmtLoad:   stmtLoad,
		stmtList:   stmtList,
		stmtDelete: stmtDelete,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// prepareAll prepares queries in order. If one fails, the statements already
// prepared are closed before the error is returned.
func prepareAll(prepare func(string) (*sql.Stmt, error), queries ...string) ([]*sql.Stmt, error) {
	stmts := make([]*sql.Stmt, 0, len(queries))
	for _, query := range queries {
		stmt, err := prepare(query)
		if err != nil {
			errs := []error{err}
			for _, prepared := range stmts {
				errs = append(errs, prepared.Close())
			}
			return nil, errors.Join(errs...)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// SetLogger sets the logger for the store. By default, all logs are discarded.
func (s *SQLStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	now := s.now().UnixMilli()
	if _, err := s.stmtSave.ExecContext(ctx, rec.Name, rec.Order, rec.Size, rec.Serialized, now, now); err != nil {
		return fmt.Errorf("could not save model '%s': %w", rec.Name, err)
	}
	s.logger.DebugContext(ctx, "Model saved",
		slog.String("model_name", rec.Name),
		slog.Int("order", rec.Order),
		slog.Int("size", rec.Size),
		slog.Int("bytes", len(rec.Serialized)),
	)
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, name string) (Record, error) {
	var rec Record
	var created, updated int64
	err := s.stmtLoad.QueryRowContext(ctx, name).Scan(&rec.Name, &rec.Order, &rec.Size, &rec.Serialized, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, notFound(name)
		}
		return Record{}, fmt.Errorf("could not load model '%s': %w", name, err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return rec, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var created, updated int64
		if err = rows.Scan(&rec.Name, &rec.Order, &rec.Size, &created, &updated); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.UpdatedAt = time.UnixMilli(updated).UTC()
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	res, err := s.stmtDelete.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("could not remove model '%s': %w", name, err)
	}
	rowsAffected, _ := res.RowsAffected()
	s.logger.InfoContext(ctx, "Model removed",
		slog.String("model_name", name),
		slog.Int64("rows_removed", rowsAffected),
	)
	return nil
}

// Close releases all prepared statements. The database itself stays open.
func (s *SQLStore) Close() error {
	return errors.Join(
		s.stmtSave.Close(),
		s.stmtLoad.Close(),
		s.stmtList.Close(),
		s.stmtDelete.Close(),
	)
}
