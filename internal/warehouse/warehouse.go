// Package warehouse owns the SQLite database the load stage writes into.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
)

// ClassCount is one aggregated row: passenger count for a ticket class.
type ClassCount struct {
	Pclass     string    `json:"pclass"`
	Passengers int       `json:"passengers"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Store wraps the warehouse database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema. The parent directory is created on demand.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.NewStorageError("failed to create warehouse directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open warehouse database", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent transactions.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("warehouse opened", slog.String("path", path))
	return store, nil
}

// migrate applies the schema. Idempotent.
func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS class_counts (
	pclass     TEXT PRIMARY KEY,
	passengers INTEGER NOT NULL,
	loaded_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("failed to apply warehouse schema", err)
	}
	return nil
}

// ReplaceClassCounts replaces the class_counts table contents with rows
// inside a single transaction, so readers see either the old or the new
// aggregate, never a mixture.
func (s *Store) ReplaceClassCounts(ctx context.Context, rows []ClassCount) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM class_counts`); err != nil {
		return apperrors.NewStorageError("failed to clear class_counts", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO class_counts (pclass, passengers, loaded_at) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Pclass, row.Passengers, now); err != nil {
			return apperrors.NewStorageError(
				fmt.Sprintf("failed to insert class %q", row.Pclass), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit class_counts", err)
	}

	s.logger.InfoContext(ctx, "class counts loaded",
		slog.Int("rows", len(rows)))
	return nil
}

// ClassCounts returns every aggregated row ordered by class.
func (s *Store) ClassCounts(ctx context.Context) ([]ClassCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pclass, passengers, loaded_at FROM class_counts ORDER BY pclass`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query class_counts", err)
	}
	defer rows.Close()

	var out []ClassCount
	for rows.Next() {
		var cc ClassCount
		if err := rows.Scan(&cc.Pclass, &cc.Passengers, &cc.LoadedAt); err != nil {
			return nil, apperrors.NewStorageError("failed to scan class_counts row", err)
		}
		out = append(out, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate class_counts", err)
	}

	return out, nil
}

// CountRows returns the number of rows in class_counts.
func (s *Store) CountRows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM class_counts`).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError("failed to count class_counts", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
