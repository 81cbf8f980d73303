// Package models defines the core domain models for SAVT.
//
// # Models
//
//   - Item: A decision container grouping related features (e.g. a pizza)
//   - Feature: A suggested option, owned by one item or standalone
//   - Event: An append-only audit record of a state transition
//
// Participants are identified by opaque username strings (no user accounts).
//
// # Design Principles
//
// 1. **Nothing is deleted**: entities carry a RemovedAt tombstone instead of
// ever being dropped, so any feature can keep referencing its item forever.
// 2. **Ground truth is the veto set**: a feature has no "vetoed" flag; it is
// vetoed by exactly the usernames in VetoedBy, and nothing else.
// 3. **Avoid circular references**: features hold an item ID string, never a
// pointer back to the item.
package models
