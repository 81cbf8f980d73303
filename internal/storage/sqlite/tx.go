package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/naming"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the read helpers can
// serve the store's read methods and the transactional reads alike.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTx implements storage.Tx on one database/sql transaction.
type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ storage.Tx = (*sqlTx)(nil)

func (t *sqlTx) GetItem(itemID string) (*models.Item, error) {
	return getItem(t.ctx, t.tx, itemID)
}

func (t *sqlTx) GetLiveItemByName(normalized string) (*models.Item, error) {
	item := &models.Item{}
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT id, name, created_by, created_at, removed_at FROM items WHERE normalized_name = ? AND removed_at = 0",
		normalized,
	).Scan(&item.ID, &item.Name, &item.CreatedBy, &item.CreatedAt, &item.RemovedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get item by name: %w", err))
	}
	return item, nil
}

func (t *sqlTx) GetFeature(featureID string) (*models.Feature, error) {
	return getFeature(t.ctx, t.tx, featureID)
}

func (t *sqlTx) GetLiveFeatureByName(itemID, normalized string) (*models.Feature, error) {
	feature := &models.Feature{}
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, item_id, created_by, created_at, removed_at FROM features
		 WHERE item_id = ? AND normalized_name = ? AND removed_at = 0`,
		itemID, normalized,
	).Scan(&feature.ID, &feature.Name, &feature.ItemID, &feature.CreatedBy, &feature.CreatedAt, &feature.RemovedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get feature by name: %w", err))
	}
	if err := loadVetoes(t.ctx, t.tx, feature); err != nil {
		return nil, err
	}
	return feature, nil
}

func (t *sqlTx) InsertItem(item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().Unix()
	}

	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO items (id, name, normalized_name, created_by, created_at, removed_at) VALUES (?, ?, ?, ?, ?, 0)",
		item.ID, item.Name, naming.Normalize(item.Name), item.CreatedBy, item.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert item: %w", err))
	}
	return nil
}

func (t *sqlTx) InsertFeature(feature *models.Feature) error {
	if feature.ID == "" {
		feature.ID = uuid.New().String()
	}
	if feature.CreatedAt == 0 {
		feature.CreatedAt = time.Now().Unix()
	}

	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO features (id, name, normalized_name, item_id, created_by, created_at, removed_at) VALUES (?, ?, ?, ?, ?, ?, 0)",
		feature.ID, feature.Name, naming.Normalize(feature.Name), feature.ItemID, feature.CreatedBy, feature.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert feature: %w", err))
	}
	return nil
}

func (t *sqlTx) UpdateFeatureOwner(featureID, itemID string) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE features SET item_id = ? WHERE id = ?",
		itemID, featureID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to update feature owner: %w", err))
	}
	return requireRow(res)
}

func (t *sqlTx) AddVeto(featureID, username string) error {
	// INSERT OR IGNORE makes membership idempotent, and row-per-member
	// storage makes concurrent adds a set union instead of a lost update.
	_, err := t.tx.ExecContext(t.ctx,
		"INSERT OR IGNORE INTO vetoes (feature_id, username, created_at) VALUES (?, ?, ?)",
		featureID, username, time.Now().Unix(),
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to add veto: %w", err))
	}
	return nil
}

func (t *sqlTx) RemoveVeto(featureID, username string) error {
	_, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM vetoes WHERE feature_id = ? AND username = ?",
		featureID, username,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to remove veto: %w", err))
	}
	return nil
}

func (t *sqlTx) MarkItemRemoved(itemID string, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE items SET removed_at = ? WHERE id = ? AND removed_at = 0",
		at, itemID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to mark item removed: %w", err))
	}
	return requireRow(res)
}

func (t *sqlTx) MarkFeatureRemoved(featureID string, at int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE features SET removed_at = ? WHERE id = ? AND removed_at = 0",
		at, featureID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to mark feature removed: %w", err))
	}
	return requireRow(res)
}

func (t *sqlTx) ClearItemRemoved(itemID string) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE items SET removed_at = 0 WHERE id = ? AND removed_at <> 0",
		itemID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to restore item: %w", err))
	}
	return requireRow(res)
}

func (t *sqlTx) ClearFeatureRemoved(featureID string) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE features SET removed_at = 0 WHERE id = ? AND removed_at <> 0",
		featureID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to restore feature: %w", err))
	}
	return requireRow(res)
}

func (t *sqlTx) ListFeaturesForItem(itemID string) ([]models.Feature, error) {
	return listFeatures(t.ctx, t.tx, itemID)
}

func (t *sqlTx) ListStandaloneFeatures() ([]models.Feature, error) {
	return listFeatures(t.ctx, t.tx, "")
}

func (t *sqlTx) ListRemovedFeaturesForItem(itemID string, removedAt int64) ([]models.Feature, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, name, item_id, created_by, created_at, removed_at FROM features
		 WHERE item_id = ? AND removed_at = ? ORDER BY normalized_name`,
		itemID, removedAt,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list removed features: %w", err))
	}
	defer rows.Close()

	var features []models.Feature
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.ItemID, &f.CreatedBy, &f.CreatedAt, &f.RemovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to iterate features: %w", err))
	}
	return features, nil
}

func (t *sqlTx) AppendEvent(event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}

	_, err := t.tx.ExecContext(t.ctx,
		"INSERT INTO events (id, entity_kind, entity_id, operation, actor, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		event.ID, event.EntityKind, event.EntityID, event.Operation, event.Actor, event.Detail, event.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to append event: %w", err))
	}
	return nil
}

// requireRow converts a zero-row UPDATE into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// getItem reads one item row by ID, live or removed.
func getItem(ctx context.Context, q querier, itemID string) (*models.Item, error) {
	item := &models.Item{}
	err := q.QueryRowContext(ctx,
		"SELECT id, name, created_by, created_at, removed_at FROM items WHERE id = ?",
		itemID,
	).Scan(&item.ID, &item.Name, &item.CreatedBy, &item.CreatedAt, &item.RemovedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get item: %w", err))
	}
	return item, nil
}

// getFeature reads one feature row by ID, live or removed, with its vetoes.
func getFeature(ctx context.Context, q querier, featureID string) (*models.Feature, error) {
	feature := &models.Feature{}
	err := q.QueryRowContext(ctx,
		"SELECT id, name, item_id, created_by, created_at, removed_at FROM features WHERE id = ?",
		featureID,
	).Scan(&feature.ID, &feature.Name, &feature.ItemID, &feature.CreatedBy, &feature.CreatedAt, &feature.RemovedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to get feature: %w", err))
	}
	if err := loadVetoes(ctx, q, feature); err != nil {
		return nil, err
	}
	return feature, nil
}

// listFeatures returns the live features in one ownership scope. An empty
// itemID selects the standalone features.
func listFeatures(ctx context.Context, q querier, itemID string) ([]models.Feature, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, item_id, created_by, created_at, removed_at FROM features
		 WHERE item_id = ? AND removed_at = 0 ORDER BY normalized_name`,
		itemID,
	)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list features: %w", err))
	}
	defer rows.Close()

	var features []models.Feature
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.ItemID, &f.CreatedBy, &f.CreatedAt, &f.RemovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("failed to iterate features: %w", err))
	}

	for i := range features {
		if err := loadVetoes(ctx, q, &features[i]); err != nil {
			return nil, err
		}
	}
	return features, nil
}

// loadVetoes fills in a feature's veto set, sorted by username.
func loadVetoes(ctx context.Context, q querier, feature *models.Feature) error {
	rows, err := q.QueryContext(ctx,
		"SELECT username FROM vetoes WHERE feature_id = ? ORDER BY username",
		feature.ID,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to get vetoes: %w", err))
	}
	defer rows.Close()

	feature.VetoedBy = nil
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return fmt.Errorf("failed to scan veto: %w", err)
		}
		feature.VetoedBy = append(feature.VetoedBy, username)
	}
	if err := rows.Err(); err != nil {
		return mapError(fmt.Errorf("failed to iterate vetoes: %w", err))
	}
	return nil
}
