// Package engine implements the consensus operations over items, features
// and vetoes. Consensus emerges from the absence of objection: any
// participant can suggest a feature, and any participant can veto one; the
// engine's job is to keep those writes race-safe without ever deleting
// history.
//
// Every operation runs inside one storage transaction and re-reads the state
// it needs there; the engine holds no mutable state of its own between
// calls, so it can be shared freely across goroutines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/naming"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// ErrSameItem is returned when a merge names the same item on both sides.
var ErrSameItem = errors.New("cannot merge an item with itself")

// Config carries the engine's tunables.
type Config struct {
	// MaxNameLength caps item and feature names. Zero means the naming
	// package default.
	MaxNameLength int

	// UndoWindow bounds how long after a soft removal a restore is still
	// accepted. Zero disables the limit.
	UndoWindow time.Duration
}

// Engine owns the consensus operation set. All methods are safe for
// concurrent use and may block on storage; every call either fully commits
// or has no effect.
type Engine struct {
	store      storage.Store
	names      naming.Policy
	undoWindow time.Duration
}

// New creates an Engine on top of the given store.
func New(store storage.Store, cfg Config) *Engine {
	return &Engine{
		store:      store,
		names:      naming.Policy{MaxLength: cfg.MaxNameLength},
		undoWindow: cfg.UndoWindow,
	}
}

// update runs fn in a transaction, retrying once on a write-write conflict.
// Conflicts are expected under load and safe to retry because fn re-reads
// everything it depends on.
func (e *Engine) update(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := e.store.Update(ctx, fn)
	if errors.Is(err, storage.ErrConflict) {
		slog.Debug("Retrying after write conflict")
		err = e.store.Update(ctx, fn)
	}
	return err
}

// CreateItem creates a new decision container. Fails with
// storage.ErrDuplicate if a live item already has the same normalized name.
func (e *Engine) CreateItem(ctx context.Context, name, createdBy string) (*models.Item, error) {
	normalized, err := e.names.Validate(name)
	if err != nil {
		slog.Warn("Item creation failed - invalid name", "name", name, "error", err)
		return nil, err
	}

	var item *models.Item
	err = e.update(ctx, func(tx storage.Tx) error {
		item = nil
		if _, err := tx.GetLiveItemByName(normalized); err == nil {
			return fmt.Errorf("item %q: %w", name, storage.ErrDuplicate)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		item = &models.Item{Name: name, CreatedBy: createdBy}
		if err := tx.InsertItem(item); err != nil {
			return err
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   item.ID,
			Operation:  models.EventCreateItem,
			Actor:      createdBy,
		})
	})
	if err != nil {
		slog.Warn("Item creation failed", "name", name, "error", err)
		return nil, err
	}

	slog.Info("Item created", "item_id", item.ID, "name", item.Name)
	return item, nil
}

// CreateFeature suggests a new option, owned by the given item or standalone
// when itemID is empty. The owning item must exist and be live. Fails with
// storage.ErrDuplicate if a live feature with the same normalized name
// exists in the same scope.
func (e *Engine) CreateFeature(ctx context.Context, name, itemID, createdBy string) (*models.Feature, error) {
	normalized, err := e.names.Validate(name)
	if err != nil {
		slog.Warn("Feature creation failed - invalid name", "name", name, "error", err)
		return nil, err
	}

	var feature *models.Feature
	err = e.update(ctx, func(tx storage.Tx) error {
		feature = nil
		if itemID != "" {
			if err := requireLiveItem(tx, itemID); err != nil {
				return err
			}
		}
		if _, err := tx.GetLiveFeatureByName(itemID, normalized); err == nil {
			return fmt.Errorf("feature %q: %w", name, storage.ErrDuplicate)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		feature = &models.Feature{Name: name, ItemID: itemID, CreatedBy: createdBy}
		if err := tx.InsertFeature(feature); err != nil {
			return err
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "feature",
			EntityID:   feature.ID,
			Operation:  models.EventCreateFeature,
			Actor:      createdBy,
		})
	})
	if err != nil {
		slog.Warn("Feature creation failed", "name", name, "item_id", itemID, "error", err)
		return nil, err
	}

	slog.Info("Feature created", "feature_id", feature.ID, "name", feature.Name, "item_id", itemID)
	return feature, nil
}

// Veto adds a participant's objection to a feature. Vetoing a feature the
// participant already vetoes is a successful no-op.
func (e *Engine) Veto(ctx context.Context, featureID, username string) (*models.Feature, error) {
	return e.setVeto(ctx, featureID, username, true)
}

// Unveto withdraws a participant's objection. Withdrawing an objection that
// was never raised is a successful no-op.
func (e *Engine) Unveto(ctx context.Context, featureID, username string) (*models.Feature, error) {
	return e.setVeto(ctx, featureID, username, false)
}

func (e *Engine) setVeto(ctx context.Context, featureID, username string, veto bool) (*models.Feature, error) {
	operation := models.EventVeto
	if !veto {
		operation = models.EventUnveto
	}

	var feature *models.Feature
	err := e.update(ctx, func(tx storage.Tx) error {
		f, err := tx.GetFeature(featureID)
		if err != nil {
			return err
		}
		if !f.Live() {
			return fmt.Errorf("feature %s: %w", featureID, storage.ErrNotFound)
		}

		changed := f.VetoedByUser(username) != veto
		if changed {
			if veto {
				err = tx.AddVeto(featureID, username)
			} else {
				err = tx.RemoveVeto(featureID, username)
			}
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(&models.Event{
				EntityKind: "feature",
				EntityID:   featureID,
				Operation:  operation,
				Actor:      username,
			}); err != nil {
				return err
			}
		}

		// Return the committed set, not a guess.
		feature, err = tx.GetFeature(featureID)
		return err
	})
	if err != nil {
		slog.Warn("Veto change failed", "operation", operation, "feature_id", featureID, "user", username, "error", err)
		return nil, err
	}

	slog.Info("Veto change applied",
		"operation", operation,
		"feature_id", featureID,
		"user", username,
		"vetoed_by_count", len(feature.VetoedBy),
	)
	return feature, nil
}

// requireLiveItem fails with ErrNotFound unless the item exists and has no
// tombstone.
func requireLiveItem(tx storage.Tx, itemID string) error {
	item, err := tx.GetItem(itemID)
	if err != nil {
		return err
	}
	if !item.Live() {
		return fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	return nil
}
