// Package sqlite opens an embedded SQLite database and applies the engine's
// DDL bundle so the store is usable immediately.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"ticketcore/internal/engine"
	"ticketcore/internal/schema/sqlbundle"
)

// MemoryDSN opens a private in-memory database, used for tests and the
// "memory" storage driver.
const MemoryDSN = ":memory:"

// Open creates or opens the database at path and returns an engine store
// bound to it. The schema is applied idempotently on every open.
func Open(ctx context.Context, path string) (*engine.Store, error) {
	if path == "" {
		path = "ticketcore.db"
	}
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryDSN {
		// An in-memory database vanishes with its connection; pin one.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}
	if err := applyDDL(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return engine.NewStore(db, engine.DialectSQLite), nil
}

func applyDDL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.SQLite()) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
