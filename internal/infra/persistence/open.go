// Package persistence selects a storage backend from the environment.
package persistence

import (
	"context"
	"fmt"
	"os"

	"ticketcore/internal/engine"
	"ticketcore/internal/infra/persistence/postgres"
	"ticketcore/internal/infra/persistence/sqlite"
)

// Driver identifies a storage backend.
type Driver string

const (
	// DriverMemory is an in-memory SQLite database (tests / ephemeral).
	DriverMemory Driver = "memory"
	// DriverSQLite is an embedded SQLite file (default).
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Open selects a backend using environment variables. Defaults to sqlite
// when unset.
//
//	TICKETCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TICKETCORE_SQLITE_PATH: path to sqlite file (default ./ticketcore.db)
//	TICKETCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (*engine.Store, error) {
	driver := os.Getenv("TICKETCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return sqlite.Open(ctx, sqlite.MemoryDSN)
	case DriverSQLite:
		return sqlite.Open(ctx, os.Getenv("TICKETCORE_SQLITE_PATH"))
	case DriverPostgres:
		return postgres.Open(ctx, os.Getenv("TICKETCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
