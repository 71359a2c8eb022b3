// Package sqlite provides a SQLite-backed experiment store. The working set
// lives in memory and every import is snapshotted to a single state table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ephyscore/internal/infra/persistence/memory"
	"ephyscore/pkg/ephys"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ ephys.Store    = (*Store)(nil)
	_ ephys.Importer = (*Store)(nil)
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "ephyscore.db"

// Store persists the in-memory state to SQLite as one JSON payload per table.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the working
// set from any saved state.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var (
		snapshot ephys.Snapshot
		found    bool
	)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := memory.DecodeBucket(&snapshot, bucket, payload); err != nil {
			return err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if !found {
		return nil
	}
	return s.Store.Import(ctx, snapshot)
}

// Import merges the snapshot into the working set, then snapshots the whole
// state to SQLite. The working set is rolled back when the state cannot be
// saved.
func (s *Store) Import(ctx context.Context, snapshot ephys.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ExportState()
	if err := s.Store.Import(ctx, snapshot); err != nil {
		return err
	}
	if err := s.persist(ctx); err != nil {
		if rerr := s.Replace(context.WithoutCancel(ctx), prev); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore working set: %w", rerr))
		}
		return err
	}
	return nil
}

// persist writes every bucket in one transaction. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) (retErr error) {
	state := s.ExportState()
	payloads := make(map[string][]byte, len(memory.Buckets))
	for _, bucket := range memory.Buckets {
		data, err := memory.EncodeBucket(state, bucket)
		if err != nil {
			return err
		}
		payloads[bucket] = data
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, payloads[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
