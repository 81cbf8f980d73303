package models

// Item represents a decision container that features can be suggested for.
// Its name is unique among all live items after normalization.
type Item struct {
	// ID is the unique identifier for the item (UUID format). Assigned by
	// the storage layer at creation and never reused.
	ID string

	// Name is the display name exactly as the creator typed it.
	Name string

	// CreatedBy is the username of the participant who created the item.
	// Empty for anonymously created items.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the item was created.
	CreatedAt int64

	// RemovedAt is the Unix timestamp of the soft removal, or 0 while the
	// item is live. The row itself is never deleted.
	RemovedAt int64
}

// Live reports whether the item has not been soft-removed.
func (i *Item) Live() bool {
	return i.RemovedAt == 0
}

// Feature represents a suggested option. A feature belongs to exactly one
// item, or to no item at all (ItemID empty), and its name is unique within
// that scope among live features.
type Feature struct {
	// ID is the unique identifier for the feature (UUID format).
	ID string

	// Name is the display name exactly as the creator typed it.
	Name string

	// ItemID is the ID of the owning item, or empty for a standalone
	// feature. It changes only through an explicit move.
	ItemID string

	// CreatedBy is the username of the participant who suggested the
	// feature. Empty for anonymously created features.
	CreatedBy string

	// VetoedBy is the set of usernames currently vetoing the feature,
	// sorted for stable output. Membership is idempotent: vetoing twice
	// and vetoing once leave the same set.
	VetoedBy []string

	// CreatedAt is the Unix timestamp when the feature was created.
	CreatedAt int64

	// RemovedAt is the Unix timestamp of the soft removal, or 0 while the
	// feature is live.
	RemovedAt int64
}

// Live reports whether the feature has not been soft-removed.
func (f *Feature) Live() bool {
	return f.RemovedAt == 0
}

// VetoedByUser reports whether the given username currently vetoes the
// feature.
func (f *Feature) VetoedByUser(user string) bool {
	for _, u := range f.VetoedBy {
		if u == user {
			return true
		}
	}
	return false
}

// Vetoed reports whether any participant currently vetoes the feature.
func (f *Feature) Vetoed() bool {
	return len(f.VetoedBy) > 0
}
