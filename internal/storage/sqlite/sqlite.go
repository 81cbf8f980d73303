// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open with the pure Go driver. The pragmas go in the DSN so they apply
	// to every pooled connection, and _txlock=immediate makes write
	// transactions take the write lock up front instead of deadlocking on
	// upgrade under concurrent writers.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Update runs fn inside one transaction, committing on success and rolling
// back on any error or panic exit path.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// GetItem retrieves an item by ID, live or removed.
func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	return getItem(ctx, s.db, itemID)
}

// GetFeature retrieves a feature by ID, live or removed, with its veto set.
func (s *SQLiteStore) GetFeature(ctx context.Context, featureID string) (*models.Feature, error) {
	return getFeature(ctx, s.db, featureID)
}

// ListItems returns all live items ordered by name, plus removed ones when
// includeRemoved is set.
func (s *SQLiteStore) ListItems(ctx context.Context, includeRemoved bool) ([]models.Item, error) {
	query := "SELECT id, name, created_by, created_at, removed_at FROM items"
	if !includeRemoved {
		query += " WHERE removed_at = 0"
	}
	query += " ORDER BY normalized_name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list items: %w", err))
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.CreatedBy, &it.CreatedAt, &it.RemovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to iterate items: %w", err))
	}
	return items, nil
}

// ListFeaturesForItem returns the live features owned by an item.
func (s *SQLiteStore) ListFeaturesForItem(ctx context.Context, itemID string) ([]models.Feature, error) {
	return listFeatures(ctx, s.db, itemID)
}

// ListStandaloneFeatures returns the live features owned by no item.
func (s *SQLiteStore) ListStandaloneFeatures(ctx context.Context) ([]models.Feature, error) {
	return listFeatures(ctx, s.db, "")
}

// ListEvents returns the audit events recorded for an entity, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, entityID string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_kind, entity_id, operation, actor, detail, created_at
		 FROM events WHERE entity_id = ? ORDER BY rowid`,
		entityID,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list events: %w", err))
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.Operation, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to iterate events: %w", err))
	}
	return events, nil
}

// mapError translates driver errors into the storage error taxonomy.
// Constraint violations become ErrDuplicate (the unique indexes are all name
// uniqueness), lock contention becomes ErrConflict, and connection-level
// failures become ErrUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_READONLY:
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return err
}
