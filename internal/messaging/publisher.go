// Package messaging publishes fire-and-forget entity change notifications
// consumed by downstream listeners (UI refresh, search indexers).
package messaging

import (
	"context"
)

// ChangeType describes what happened to an entity.
type ChangeType string

const (
	// ChangeTypeAdded indicates a new entity was created.
	ChangeTypeAdded ChangeType = "added"
	// ChangeTypeSaved indicates an existing entity was updated.
	ChangeTypeSaved ChangeType = "saved"
	// ChangeTypeRemoved indicates an entity was deleted.
	ChangeTypeRemoved ChangeType = "removed"
)

// EntityChange is a notification that one or more entities changed.
// ID is optional: batched announcements (e.g. several stacks created by one
// pipeline run) omit it and carry context in Data instead.
type EntityChange struct {
	ChangeType ChangeType        `json:"change_type"`
	EntityType string            `json:"entity_type"`
	ID         string            `json:"id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher delivers entity change notifications. Delivery is best-effort;
// publishers never block pipeline progress on listener availability.
type Publisher interface {
	PublishEntityChanged(ctx context.Context, change EntityChange) error
}
