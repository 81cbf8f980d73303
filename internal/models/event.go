package models

// Event operations recorded in the audit log. One constant per engine
// operation that mutates state.
const (
	EventCreateItem     = "create_item"
	EventCreateFeature  = "create_feature"
	EventVeto           = "veto"
	EventUnveto         = "unveto"
	EventMoveFeature    = "move_feature"
	EventMergeItems     = "merge_items"
	EventSplitItem      = "split_item"
	EventRemoveItem     = "remove_item"
	EventRemoveFeature  = "remove_feature"
	EventRestoreItem    = "restore_item"
	EventRestoreFeature = "restore_feature"
)

// Event is one append-only audit record. Events are written in the same
// transaction as the state change they describe and are never updated or
// deleted, so the history of any entity can be replayed from its events.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string

	// EntityKind is "item" or "feature".
	EntityKind string

	// EntityID is the ID of the item or feature the event belongs to.
	EntityID string

	// Operation is one of the Event* constants.
	Operation string

	// Actor is the username that triggered the operation, if known.
	Actor string

	// Detail is a short human-readable summary (e.g. the destination of a
	// move). Optional.
	Detail string

	// CreatedAt is the Unix timestamp when the event was recorded.
	CreatedAt int64
}
