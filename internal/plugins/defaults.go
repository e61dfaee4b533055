package plugins

import (
	"context"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// maxTitleLength caps generated stack titles.
const maxTitleLength = 250

// NoopProcessor is an EventProcessor that does nothing. It stands in when no
// enrichment plugins are registered.
type NoopProcessor struct{}

// EventBatchProcessing is a no-op.
func (NoopProcessor) EventBatchProcessing(ctx context.Context, events []*models.Event) error {
	return nil
}

// EventBatchProcessed is a no-op.
func (NoopProcessor) EventBatchProcessed(ctx context.Context, events []*models.Event) error {
	return nil
}

// DefaultFormatter derives stack titles from the event message, falling back
// to source and type.
type DefaultFormatter struct{}

// GetStackTitle derives a stack title from the triggering event.
func (DefaultFormatter) GetStackTitle(event *models.Event) string {
	title := strings.TrimSpace(event.Message)
	if title == "" {
		title = strings.TrimSpace(event.Source)
	}
	if title == "" {
		title = "(" + event.Type + ")"
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// DefaultWebhookData builds the standard v2 webhook payload. Unknown versions
// fall back to v2.
type DefaultWebhookData struct{}

// BuildPayload returns the delivery body for the given hook version.
func (DefaultWebhookData) BuildPayload(version string, event *models.Event, stack *models.Stack) (map[string]any, error) {
	payload := map[string]any{
		"version":         "v2",
		"id":              event.ID.String(),
		"organization_id": event.OrganizationID.String(),
		"project_id":      event.ProjectID.String(),
		"type":            event.Type,
		"source":          event.Source,
		"message":         event.Message,
		"date":            event.Date.Format(time.RFC3339),
		"tags":            []string(event.Tags),
	}
	if stack != nil {
		payload["stack_id"] = stack.ID.String()
		payload["stack_title"] = stack.Title
		payload["stack_status"] = string(stack.Status)
		payload["total_occurrences"] = stack.TotalOccurrences
	}
	return payload, nil
}

// Compile-time interface checks.
var (
	_ EventProcessor     = NoopProcessor{}
	_ FormattingManager  = DefaultFormatter{}
	_ WebhookDataBuilder = DefaultWebhookData{}
)
