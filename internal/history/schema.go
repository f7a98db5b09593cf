package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in SQLite's user_version pragma. The archive is
// derived data, so on a mismatch we refuse to open rather than migrate; the
// operator deletes the file and the daemon rebuilds it.
const schemaVersion = 1

// ErrSchemaMismatch reports an archive written by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch version {
	case schemaVersion:
		return nil
	case 0:
		// Fresh database, or an empty file created by a failed earlier open.
		// Creating tables is idempotent only on a truly fresh file, so guard
		// on the main table's existence.
		var tables int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='download_history'",
		).Scan(&tables)
		if err != nil {
			return fmt.Errorf("inspect archive tables: %w", err)
		}
		if tables > 0 {
			break
		}
		return s.createSchema(ctx)
	}
	return fmt.Errorf("%w: archive has version %d, expected %d (delete %s to rebuild)",
		ErrSchemaMismatch, version, schemaVersion, s.path)
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
