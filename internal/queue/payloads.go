package queue

import "github.com/faultlinehq/faultline/internal/models"

// Work item priorities. Higher values run first.
const (
	PriorityLow    = 0
	PriorityNormal = 5
	PriorityHigh   = 10
)

// ProjectConfiguredPayload marks a project configured after its first event.
type ProjectConfiguredPayload struct {
	ProjectID models.ULID `json:"project_id"`
}

// EventNotificationPayload describes a pending project notification.
type EventNotificationPayload struct {
	EventID          models.ULID `json:"event_id"`
	StackID          models.ULID `json:"stack_id"`
	ProjectID        models.ULID `json:"project_id"`
	IsNew            bool        `json:"is_new"`
	IsRegression     bool        `json:"is_regression"`
	IsCritical       bool        `json:"is_critical"`
	TotalOccurrences int64       `json:"total_occurrences"`
}

// WebhookDeliveryPayload describes webhook fan-out for one event. The hook
// IDs are resolved at enqueue time so delivery is unaffected by later hook
// changes.
type WebhookDeliveryPayload struct {
	EventID   models.ULID   `json:"event_id"`
	StackID   models.ULID   `json:"stack_id"`
	EventType string        `json:"event_type"`
	HookIDs   []models.ULID `json:"hook_ids"`
}

// RetentionSweepPayload scopes a retention sweep to one organization.
type RetentionSweepPayload struct {
	OrganizationID models.ULID `json:"organization_id"`
}
