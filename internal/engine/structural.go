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

// Move re-parents a feature onto another item, or makes it standalone when
// newItemID is empty. The destination item must be live, and the feature's
// name must be free in the destination scope; on a collision nothing
// changes and storage.ErrDuplicate is returned.
func (e *Engine) Move(ctx context.Context, featureID, newItemID string) (*models.Feature, error) {
	var feature *models.Feature
	err := e.update(ctx, func(tx storage.Tx) error {
		f, err := tx.GetFeature(featureID)
		if err != nil {
			return err
		}
		if !f.Live() {
			return fmt.Errorf("feature %s: %w", featureID, storage.ErrNotFound)
		}
		if f.ItemID == newItemID {
			feature = f
			return nil
		}
		if newItemID != "" {
			if err := requireLiveItem(tx, newItemID); err != nil {
				return err
			}
		}
		if _, err := tx.GetLiveFeatureByName(newItemID, naming.Normalize(f.Name)); err == nil {
			return fmt.Errorf("feature %q in destination: %w", f.Name, storage.ErrDuplicate)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		if err := tx.UpdateFeatureOwner(featureID, newItemID); err != nil {
			return err
		}
		if err := tx.AppendEvent(&models.Event{
			EntityKind: "feature",
			EntityID:   featureID,
			Operation:  models.EventMoveFeature,
			Detail:     fmt.Sprintf("from %q to %q", f.ItemID, newItemID),
		}); err != nil {
			return err
		}

		feature, err = tx.GetFeature(featureID)
		return err
	})
	if err != nil {
		slog.Warn("Feature move failed", "feature_id", featureID, "to_item", newItemID, "error", err)
		return nil, err
	}

	slog.Info("Feature moved", "feature_id", featureID, "to_item", newItemID)
	return feature, nil
}

// Merge combines two items under resultingName. If the resulting name is one
// of the two items' names that item survives; otherwise a fresh item is
// created and both sources are tombstoned. Every live feature of the merged
// items ends up on the survivor. If any two features would collide by name
// after the merge, the whole operation fails with storage.ErrDuplicate and
// neither item changes: silently dropping or renaming features would lose
// decisions participants already made.
func (e *Engine) Merge(ctx context.Context, itemIDA, itemIDB, resultingName string) (*models.Item, error) {
	if itemIDA == itemIDB {
		return nil, ErrSameItem
	}
	normalized, err := e.names.Validate(resultingName)
	if err != nil {
		slog.Warn("Merge failed - invalid name", "name", resultingName, "error", err)
		return nil, err
	}

	var survivor *models.Item
	err = e.update(ctx, func(tx storage.Tx) error {
		survivor = nil
		a, err := tx.GetItem(itemIDA)
		if err != nil {
			return err
		}
		b, err := tx.GetItem(itemIDB)
		if err != nil {
			return err
		}
		if !a.Live() {
			return fmt.Errorf("item %s: %w", itemIDA, storage.ErrNotFound)
		}
		if !b.Live() {
			return fmt.Errorf("item %s: %w", itemIDB, storage.ErrNotFound)
		}

		var sources []*models.Item
		switch normalized {
		case naming.Normalize(a.Name):
			survivor, sources = a, []*models.Item{b}
		case naming.Normalize(b.Name):
			survivor, sources = b, []*models.Item{a}
		default:
			if _, err := tx.GetLiveItemByName(normalized); err == nil {
				return fmt.Errorf("item %q: %w", resultingName, storage.ErrDuplicate)
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			survivor = &models.Item{Name: resultingName}
			if err := tx.InsertItem(survivor); err != nil {
				return err
			}
			sources = []*models.Item{a, b}
		}

		// All-or-nothing collision check before any feature moves.
		taken := map[string]bool{}
		kept, err := tx.ListFeaturesForItem(survivor.ID)
		if err != nil {
			return err
		}
		for _, f := range kept {
			taken[naming.Normalize(f.Name)] = true
		}
		var moving []models.Feature
		for _, src := range sources {
			features, err := tx.ListFeaturesForItem(src.ID)
			if err != nil {
				return err
			}
			for _, f := range features {
				key := naming.Normalize(f.Name)
				if taken[key] {
					return fmt.Errorf("feature %q collides after merge: %w", f.Name, storage.ErrDuplicate)
				}
				taken[key] = true
			}
			moving = append(moving, features...)
		}

		for _, f := range moving {
			if err := tx.UpdateFeatureOwner(f.ID, survivor.ID); err != nil {
				return err
			}
		}

		now := time.Now().Unix()
		for _, src := range sources {
			if err := tx.MarkItemRemoved(src.ID, now); err != nil {
				return err
			}
			if err := tx.AppendEvent(&models.Event{
				EntityKind: "item",
				EntityID:   src.ID,
				Operation:  models.EventMergeItems,
				Detail:     fmt.Sprintf("merged into %q", survivor.ID),
			}); err != nil {
				return err
			}
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   survivor.ID,
			Operation:  models.EventMergeItems,
			Detail:     fmt.Sprintf("absorbed %d features", len(moving)),
		})
	})
	if err != nil {
		slog.Warn("Merge failed", "item_a", itemIDA, "item_b", itemIDB, "name", resultingName, "error", err)
		return nil, err
	}

	slog.Info("Items merged", "item_a", itemIDA, "item_b", itemIDB, "survivor_id", survivor.ID, "name", survivor.Name)
	return survivor, nil
}

// Split extracts the named features of an item onto a brand-new item. Every
// ID in featureIDs must be a live feature currently owned by itemID, checked
// and moved in the same transaction; the remainder stays where it is. Veto
// sets travel with their features untouched.
func (e *Engine) Split(ctx context.Context, itemID string, featureIDs []string, newItemName string) (*models.Item, error) {
	normalized, err := e.names.Validate(newItemName)
	if err != nil {
		slog.Warn("Split failed - invalid name", "name", newItemName, "error", err)
		return nil, err
	}

	var newItem *models.Item
	err = e.update(ctx, func(tx storage.Tx) error {
		newItem = nil
		if err := requireLiveItem(tx, itemID); err != nil {
			return err
		}
		if _, err := tx.GetLiveItemByName(normalized); err == nil {
			return fmt.Errorf("item %q: %w", newItemName, storage.ErrDuplicate)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		owned, err := tx.ListFeaturesForItem(itemID)
		if err != nil {
			return err
		}
		ownedByID := make(map[string]bool, len(owned))
		for _, f := range owned {
			ownedByID[f.ID] = true
		}
		extract := make([]string, 0, len(featureIDs))
		seen := map[string]bool{}
		for _, id := range featureIDs {
			if !ownedByID[id] {
				return fmt.Errorf("feature %s is not owned by item %s: %w", id, itemID, storage.ErrNotFound)
			}
			if !seen[id] {
				seen[id] = true
				extract = append(extract, id)
			}
		}

		newItem = &models.Item{Name: newItemName}
		if err := tx.InsertItem(newItem); err != nil {
			return err
		}
		for _, id := range extract {
			if err := tx.UpdateFeatureOwner(id, newItem.ID); err != nil {
				return err
			}
		}

		if err := tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   itemID,
			Operation:  models.EventSplitItem,
			Detail:     fmt.Sprintf("%d features extracted to %q", len(extract), newItem.ID),
		}); err != nil {
			return err
		}
		return tx.AppendEvent(&models.Event{
			EntityKind: "item",
			EntityID:   newItem.ID,
			Operation:  models.EventSplitItem,
			Detail:     fmt.Sprintf("split from %q", itemID),
		})
	})
	if err != nil {
		slog.Warn("Split failed", "item_id", itemID, "name", newItemName, "error", err)
		return nil, err
	}

	slog.Info("Item split", "item_id", itemID, "new_item_id", newItem.ID, "features_moved", len(featureIDs))
	return newItem, nil
}
