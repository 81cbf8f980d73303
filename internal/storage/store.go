// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/joernpreuss/SAVT/internal/models"
)

// Store defines the interface for consensus state storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the engine or query layers.
//
// The read methods outside Update may be served with bounded staleness; only
// the transactional write path has to be strictly consistent.
type Store interface {
	// Update runs fn inside a single transaction. Every write issued
	// through the Tx is committed if fn returns nil and rolled back
	// otherwise, on every exit path including context cancellation.
	//
	// Two concurrent transactions inserting the same normalized name into
	// the same scope never both commit: one succeeds, the other fails with
	// ErrDuplicate or ErrConflict.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// GetItem retrieves an item by ID, whether live or removed.
	GetItem(ctx context.Context, itemID string) (*models.Item, error)

	// GetFeature retrieves a feature by ID, whether live or removed.
	GetFeature(ctx context.Context, featureID string) (*models.Feature, error)

	// ListItems returns all live items, plus removed ones when asked.
	ListItems(ctx context.Context, includeRemoved bool) ([]models.Item, error)

	// ListFeaturesForItem returns the live features owned by an item.
	ListFeaturesForItem(ctx context.Context, itemID string) ([]models.Feature, error)

	// ListStandaloneFeatures returns the live features owned by no item.
	ListStandaloneFeatures(ctx context.Context) ([]models.Feature, error)

	// ListEvents returns the audit events recorded for an entity, oldest
	// first.
	ListEvents(ctx context.Context, entityID string) ([]models.Event, error)

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of operations available inside one Update transaction. All
// reads observe the transaction's own writes.
type Tx interface {
	// GetItem retrieves an item by ID, whether live or removed.
	GetItem(itemID string) (*models.Item, error)

	// GetLiveItemByName retrieves the live item with the given normalized
	// name, or ErrNotFound.
	GetLiveItemByName(normalized string) (*models.Item, error)

	// GetFeature retrieves a feature by ID, whether live or removed.
	GetFeature(featureID string) (*models.Feature, error)

	// GetLiveFeatureByName retrieves the live feature with the given
	// normalized name in the scope of itemID (empty for standalone), or
	// ErrNotFound.
	GetLiveFeatureByName(itemID, normalized string) (*models.Feature, error)

	// InsertItem persists a new item. ID and CreatedAt are assigned if
	// unset. Fails with ErrDuplicate if a live item shares the name.
	InsertItem(item *models.Item) error

	// InsertFeature persists a new feature with an empty veto set. ID and
	// CreatedAt are assigned if unset. Fails with ErrDuplicate if a live
	// feature shares the name within the same scope.
	InsertFeature(feature *models.Feature) error

	// UpdateFeatureOwner re-scopes a feature to a new item (empty for
	// standalone). Fails with ErrDuplicate on a name collision in the
	// destination scope.
	UpdateFeatureOwner(featureID, itemID string) error

	// AddVeto adds a username to a feature's veto set. Adding a member
	// that is already present is a successful no-op, and concurrent adds
	// of different members union rather than overwrite.
	AddVeto(featureID, username string) error

	// RemoveVeto removes a username from a feature's veto set. Removing an
	// absent member is a successful no-op.
	RemoveVeto(featureID, username string) error

	// MarkItemRemoved sets an item's tombstone. The row is kept.
	MarkItemRemoved(itemID string, at int64) error

	// MarkFeatureRemoved sets a feature's tombstone. The row is kept.
	MarkFeatureRemoved(featureID string, at int64) error

	// ClearItemRemoved lifts an item's tombstone. Fails with ErrDuplicate
	// if a live item took the name in the meantime.
	ClearItemRemoved(itemID string) error

	// ClearFeatureRemoved lifts a feature's tombstone. Fails with
	// ErrDuplicate if the name was taken in the feature's scope.
	ClearFeatureRemoved(featureID string) error

	// ListFeaturesForItem returns the live features owned by an item.
	ListFeaturesForItem(itemID string) ([]models.Feature, error)

	// ListStandaloneFeatures returns the live features owned by no item.
	ListStandaloneFeatures() ([]models.Feature, error)

	// ListRemovedFeaturesForItem returns the features of an item that were
	// tombstoned at exactly the given timestamp. Used to undo a removal
	// cascade as one unit.
	ListRemovedFeaturesForItem(itemID string, removedAt int64) ([]models.Feature, error)

	// AppendEvent records an audit event in this transaction.
	AppendEvent(event *models.Event) error
}
