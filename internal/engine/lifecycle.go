package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// RemoveItem tombstones an item and all of its live features in one
// transaction. Nothing is deleted; every row keeps its identifier and
// history, and the removal can be undone while the undo window is open.
func (e *Engine) RemoveItem(ctx context.Context, itemID, actor string) error {
	err := e.update(ctx, func(tx storage.Tx) error {
		if err := requireLiveItem(tx, itemID); err != nil {
			return err
		}
		features, err := tx.ListFeaturesForItem(itemID)
		if err != nil {
			return err
		}

		// Item and cascade share one timestamp so the restore can find
		// exactly the features this removal took down.
		now := time.Now().Unix()
		if err := tx.MarkItemRemoved(itemID, now); err != nil {
			return err
		}
		for _, f := range features {
			if err := tx.MarkFeatureRemoved(f.ID, now); err != nil {
				return err
			}
			if err := tx.AppendEvent(&models.Event{
				EntityKind: "feature",
				EntityID:   f.ID,
				Operation:  models.EventRemoveFeature,
				Actor:      actor,
				Detail:     "removed with owning item",
			}); err != nil {
				return err
			}
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   itemID,
			Operation:  models.EventRemoveItem,
			Actor:      actor,
		})
	})
	if err != nil {
		slog.Warn("Item removal failed", "item_id", itemID, "error", err)
		return err
	}

	slog.Info("Item removed", "item_id", itemID, "by", actor)
	return nil
}

// RemoveFeature tombstones a single feature.
func (e *Engine) RemoveFeature(ctx context.Context, featureID, actor string) error {
	err := e.update(ctx, func(tx storage.Tx) error {
		f, err := tx.GetFeature(featureID)
		if err != nil {
			return err
		}
		if !f.Live() {
			return fmt.Errorf("feature %s: %w", featureID, storage.ErrNotFound)
		}
		if err := tx.MarkFeatureRemoved(featureID, time.Now().Unix()); err != nil {
			return err
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "feature",
			EntityID:   featureID,
			Operation:  models.EventRemoveFeature,
			Actor:      actor,
		})
	})
	if err != nil {
		slog.Warn("Feature removal failed", "feature_id", featureID, "error", err)
		return err
	}

	slog.Info("Feature removed", "feature_id", featureID, "by", actor)
	return nil
}

// RestoreItem undoes a removal, bringing back the item and every feature the
// same removal tombstoned. Restoring a live item is a successful no-op.
// Fails with storage.ErrNotFound once the undo window has passed, and with
// storage.ErrDuplicate if another live entity took one of the names in the
// meantime (in which case nothing is restored).
func (e *Engine) RestoreItem(ctx context.Context, itemID, actor string) (*models.Item, error) {
	var item *models.Item
	err := e.update(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.GetItem(itemID)
		if err != nil {
			return err
		}
		if item.Live() {
			return nil
		}
		if e.expired(item.RemovedAt) {
			return fmt.Errorf("undo window passed for item %s: %w", itemID, storage.ErrNotFound)
		}

		features, err := tx.ListRemovedFeaturesForItem(itemID, item.RemovedAt)
		if err != nil {
			return err
		}
		if err := tx.ClearItemRemoved(itemID); err != nil {
			return err
		}
		for _, f := range features {
			if err := tx.ClearFeatureRemoved(f.ID); err != nil {
				return err
			}
		}
		if err := tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   itemID,
			Operation:  models.EventRestoreItem,
			Actor:      actor,
			Detail:     fmt.Sprintf("%d features restored", len(features)),
		}); err != nil {
			return err
		}

		item, err = tx.GetItem(itemID)
		return err
	})
	if err != nil {
		slog.Warn("Item restore failed", "item_id", itemID, "error", err)
		return nil, err
	}

	slog.Info("Item restored", "item_id", itemID, "by", actor)
	return item, nil
}

// RestoreFeature undoes a single feature removal. The owning item (if any)
// must be live again first; restore it before its features.
func (e *Engine) RestoreFeature(ctx context.Context, featureID, actor string) (*models.Feature, error) {
	var feature *models.Feature
	err := e.update(ctx, func(tx storage.Tx) error {
		var err error
		feature, err = tx.GetFeature(featureID)
		if err != nil {
			return err
		}
		if feature.Live() {
			return nil
		}
		if e.expired(feature.RemovedAt) {
			return fmt.Errorf("undo window passed for feature %s: %w", featureID, storage.ErrNotFound)
		}
		if feature.ItemID != "" {
			if err := requireLiveItem(tx, feature.ItemID); err != nil {
				return err
			}
		}
		if err := tx.ClearFeatureRemoved(featureID); err != nil {
			return err
		}
		if err := tx.AppendEvent(&models.Event{
			EntityKind: "feature",
			EntityID:   featureID,
			Operation:  models.EventRestoreFeature,
			Actor:      actor,
		}); err != nil {
			return err
		}

		feature, err = tx.GetFeature(featureID)
		return err
	})
	if err != nil {
		slog.Warn("Feature restore failed", "feature_id", featureID, "error", err)
		return nil, err
	}

	slog.Info("Feature restored", "feature_id", featureID, "by", actor)
	return feature, nil
}

func (e *Engine) expired(removedAt int64) bool {
	if e.undoWindow <= 0 {
		return false
	}
	return time.Since(time.Unix(removedAt, 0)) > e.undoWindow
}
