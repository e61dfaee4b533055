// Package plugins defines the extension points the pipeline delegates to:
// event enrichment before and after processing, stack title formatting, and
// webhook payload construction.
package plugins

import (
	"context"

	"github.com/faultlinehq/faultline/internal/models"
)

// EventProcessor enriches or transforms events around the core pipeline
// stages. Implementations operate on the whole batch and must tolerate
// events that were cancelled by earlier stages.
type EventProcessor interface {
	// EventBatchProcessing runs before the core stages (priority 5).
	EventBatchProcessing(ctx context.Context, events []*models.Event) error
	// EventBatchProcessed runs after persistence and notifications (priority 100).
	EventBatchProcessed(ctx context.Context, events []*models.Event) error
}

// FormattingManager produces human-readable summaries for new stacks.
type FormattingManager interface {
	// GetStackTitle derives a stack title from the triggering event.
	GetStackTitle(event *models.Event) string
}

// WebhookDataBuilder builds the versioned payload delivered to a webhook.
type WebhookDataBuilder interface {
	// BuildPayload returns the delivery body for the given hook version.
	BuildPayload(version string, event *models.Event, stack *models.Stack) (map[string]any, error)
}
