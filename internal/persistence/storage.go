// Package persistence selects the experiment store backend.
package persistence

import (
	"context"
	"fmt"
	"os"

	"ephyscore/internal/infra/persistence/memory"
	"ephyscore/internal/infra/persistence/postgres"
	"ephyscore/internal/infra/persistence/sqlite"
	"ephyscore/pkg/ephys"
)

// StorageDriver identifies a concrete store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// Backend is a readable, seedable store.
type Backend interface {
	ephys.Store
	ephys.Importer
}

// Open selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	EPHYSCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	EPHYSCORE_SQLITE_PATH: path to sqlite file (default ./ephyscore.db)
//	EPHYSCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (Backend, error) {
	driver := os.Getenv("EPHYSCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, os.Getenv("EPHYSCORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(ctx, os.Getenv("EPHYSCORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
