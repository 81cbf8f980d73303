// Package query provides the read-side projections consumed by the
// presentation layer. It never mutates state and tolerates bounded
// staleness: correctness lives on the write path, freshness here is a UX
// concern.
package query

import (
	"context"
	"fmt"

	"github.com/joernpreuss/SAVT/internal/models"
	"github.com/joernpreuss/SAVT/internal/storage"
)

// ItemWithFeatures is an item snapshot together with its live features.
type ItemWithFeatures struct {
	Item     models.Item
	Features []models.Feature
}

// Service serves read-only projections from the store.
type Service struct {
	store storage.Store
}

// New creates a query Service on top of the given store.
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// GetItemWithFeatures returns one item (live or removed) and its live
// features.
func (s *Service) GetItemWithFeatures(ctx context.Context, itemID string) (*ItemWithFeatures, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	features, err := s.store.ListFeaturesForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load features for item %s: %w", itemID, err)
	}
	return &ItemWithFeatures{Item: *item, Features: features}, nil
}

// GetFeature returns one feature snapshot with its veto roster.
func (s *Service) GetFeature(ctx context.Context, featureID string) (*models.Feature, error) {
	return s.store.GetFeature(ctx, featureID)
}

// ListItems returns all live items with their features, plus removed items
// (without features) when includeRemoved is set.
func (s *Service) ListItems(ctx context.Context, includeRemoved bool) ([]ItemWithFeatures, error) {
	items, err := s.store.ListItems(ctx, includeRemoved)
	if err != nil {
		return nil, err
	}

	result := make([]ItemWithFeatures, 0, len(items))
	for _, item := range items {
		entry := ItemWithFeatures{Item: item}
		if item.Live() {
			entry.Features, err = s.store.ListFeaturesForItem(ctx, item.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load features for item %s: %w", item.ID, err)
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// ListStandaloneFeatures returns the live features not owned by any item.
func (s *Service) ListStandaloneFeatures(ctx context.Context) ([]models.Feature, error) {
	return s.store.ListStandaloneFeatures(ctx)
}

// ListEvents returns the audit history of one entity, oldest first.
func (s *Service) ListEvents(ctx context.Context, entityID string) ([]models.Event, error) {
	return s.store.ListEvents(ctx, entityID)
}
