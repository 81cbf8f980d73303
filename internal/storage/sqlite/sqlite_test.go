package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertItem(t *testing.T, store *SQLiteStore, name string) *models.Item {
	t.Helper()
	item := &models.Item{Name: name}
	err := store.Update(context.Background(), func(tx storage.Tx) error {
		return tx.InsertItem(item)
	})
	if err != nil {
		t.Fatalf("InsertItem(%q) failed: %v", name, err)
	}
	return item
}

func insertFeature(t *testing.T, store *SQLiteStore, name, itemID string) *models.Feature {
	t.Helper()
	feature := &models.Feature{Name: name, ItemID: itemID}
	err := store.Update(context.Background(), func(tx storage.Tx) error {
		return tx.InsertFeature(feature)
	})
	if err != nil {
		t.Fatalf("InsertFeature(%q) failed: %v", name, err)
	}
	return feature
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("InsertItem generates ID and timestamp", func(t *testing.T) {
		item := insertItem(t, store, "Pizza")
		if item.ID == "" {
			t.Error("Expected item ID to be generated")
		}
		if item.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}

		got, err := store.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if got.Name != "Pizza" || !got.Live() {
			t.Errorf("GetItem = %+v, want live item named Pizza", got)
		}
	})

	t.Run("duplicate live item name fails", func(t *testing.T) {
		insertItem(t, store, "Calzone")
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertItem(&models.Item{Name: "  CALZONE "})
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("normalized duplicate insert = %v, want ErrDuplicate", err)
		}
	})

	t.Run("feature scopes are independent", func(t *testing.T) {
		a := insertItem(t, store, "Pizza A")
		b := insertItem(t, store, "Pizza B")

		insertFeature(t, store, "Cheese", a.ID)
		insertFeature(t, store, "Cheese", b.ID)
		insertFeature(t, store, "Cheese", "") // standalone

		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.InsertFeature(&models.Feature{Name: "cheese", ItemID: a.ID})
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("same-scope duplicate = %v, want ErrDuplicate", err)
		}
	})

	t.Run("veto membership is a set", func(t *testing.T) {
		item := insertItem(t, store, "Veto Pizza")
		feature := insertFeature(t, store, "Anchovies", item.ID)

		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.AddVeto(feature.ID, "alice"); err != nil {
				return err
			}
			if err := tx.AddVeto(feature.ID, "alice"); err != nil {
				return err
			}
			return tx.AddVeto(feature.ID, "bob")
		})
		if err != nil {
			t.Fatalf("AddVeto failed: %v", err)
		}

		got, err := store.GetFeature(ctx, feature.ID)
		if err != nil {
			t.Fatalf("GetFeature failed: %v", err)
		}
		if len(got.VetoedBy) != 2 || got.VetoedBy[0] != "alice" || got.VetoedBy[1] != "bob" {
			t.Errorf("VetoedBy = %v, want [alice bob]", got.VetoedBy)
		}

		err = store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.RemoveVeto(feature.ID, "alice"); err != nil {
				return err
			}
			return tx.RemoveVeto(feature.ID, "carol") // absent, still fine
		})
		if err != nil {
			t.Fatalf("RemoveVeto failed: %v", err)
		}

		got, err = store.GetFeature(ctx, feature.ID)
		if err != nil {
			t.Fatalf("GetFeature failed: %v", err)
		}
		if len(got.VetoedBy) != 1 || got.VetoedBy[0] != "bob" {
			t.Errorf("VetoedBy = %v, want [bob]", got.VetoedBy)
		}
	})

	t.Run("tombstone frees the name but keeps the row", func(t *testing.T) {
		item := insertItem(t, store, "Doomed")
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.MarkItemRemoved(item.ID, 1234)
		})
		if err != nil {
			t.Fatalf("MarkItemRemoved failed: %v", err)
		}

		// Row still there, just not live.
		got, err := store.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetItem after removal failed: %v", err)
		}
		if got.Live() || got.RemovedAt != 1234 {
			t.Errorf("item = %+v, want tombstoned at 1234", got)
		}

		// Name is reusable now.
		insertItem(t, store, "Doomed")

		// But the tombstoned twin can no longer come back under it.
		err = store.Update(ctx, func(tx storage.Tx) error {
			return tx.ClearItemRemoved(item.ID)
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("ClearItemRemoved with taken name = %v, want ErrDuplicate", err)
		}
	})

	t.Run("removed features found by cascade timestamp", func(t *testing.T) {
		item := insertItem(t, store, "Cascade")
		f1 := insertFeature(t, store, "One", item.ID)
		f2 := insertFeature(t, store, "Two", item.ID)

		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.MarkFeatureRemoved(f1.ID, 100); err != nil {
				return err
			}
			return tx.MarkFeatureRemoved(f2.ID, 200)
		})
		if err != nil {
			t.Fatalf("MarkFeatureRemoved failed: %v", err)
		}

		err = store.Update(ctx, func(tx storage.Tx) error {
			removed, err := tx.ListRemovedFeaturesForItem(item.ID, 100)
			if err != nil {
				return err
			}
			if len(removed) != 1 || removed[0].ID != f1.ID {
				t.Errorf("removed at 100 = %v, want only %s", removed, f1.ID)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ListRemovedFeaturesForItem failed: %v", err)
		}
	})

	t.Run("update rolls back on error", func(t *testing.T) {
		item := insertItem(t, store, "Rollback")
		wantErr := errors.New("boom")
		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.MarkItemRemoved(item.ID, 99); err != nil {
				return err
			}
			return wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("Update = %v, want boom", err)
		}

		got, err := store.GetItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if !got.Live() {
			t.Error("write survived a rolled-back transaction")
		}
	})

	t.Run("events append and list in order", func(t *testing.T) {
		item := insertItem(t, store, "Audited")
		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.AppendEvent(&models.Event{
				EntityKind: "item", EntityID: item.ID,
				Operation: models.EventCreateItem, CreatedAt: 10,
			}); err != nil {
				return err
			}
			return tx.AppendEvent(&models.Event{
				EntityKind: "item", EntityID: item.ID,
				Operation: models.EventRemoveItem, Actor: "alice", CreatedAt: 20,
			})
		})
		if err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}

		events, err := store.ListEvents(ctx, item.ID)
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].Operation != models.EventCreateItem || events[1].Operation != models.EventRemoveItem {
			t.Errorf("events out of order: %v", events)
		}
		if events[1].Actor != "alice" {
			t.Errorf("actor = %q, want alice", events[1].Actor)
		}
	})

	t.Run("move collision caught by unique index", func(t *testing.T) {
		a := insertItem(t, store, "Move A")
		b := insertItem(t, store, "Move B")
		f := insertFeature(t, store, "Olives", a.ID)
		insertFeature(t, store, "Olives", b.ID)

		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.UpdateFeatureOwner(f.ID, b.ID)
		})
		if !errors.Is(err, storage.ErrDuplicate) {
			t.Errorf("colliding owner update = %v, want ErrDuplicate", err)
		}
	})
}

func TestListings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := insertItem(t, store, "Listed")
	removed := insertItem(t, store, "Unlisted")
	insertFeature(t, store, "Owned", item.ID)
	insertFeature(t, store, "Loose", "")

	if err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.MarkItemRemoved(removed.ID, 1)
	}); err != nil {
		t.Fatalf("MarkItemRemoved failed: %v", err)
	}

	live, err := store.ListItems(ctx, false)
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(live) != 1 || live[0].ID != item.ID {
		t.Errorf("live items = %v, want only %s", live, item.ID)
	}

	all, err := store.ListItems(ctx, true)
	if err != nil {
		t.Fatalf("ListItems(includeRemoved) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d items with removed included, want 2", len(all))
	}

	owned, err := store.ListFeaturesForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ListFeaturesForItem failed: %v", err)
	}
	if len(owned) != 1 || owned[0].Name != "Owned" {
		t.Errorf("owned features = %v, want [Owned]", owned)
	}

	standalone, err := store.ListStandaloneFeatures(ctx)
	if err != nil {
		t.Fatalf("ListStandaloneFeatures failed: %v", err)
	}
	if len(standalone) != 1 || standalone[0].Name != "Loose" {
		t.Errorf("standalone features = %v, want [Loose]", standalone)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetItem(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetItem(missing) = %v, want ErrNotFound", err)
	}
	if _, err := store.GetFeature(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetFeature(missing) = %v, want ErrNotFound", err)
	}
}
