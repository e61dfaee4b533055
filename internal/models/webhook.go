package models

// Webhook event types a hook may subscribe to.
const (
	// WebhookEventNewError fires on the first occurrence of an error stack.
	WebhookEventNewError = "NewError"
	// WebhookEventCriticalError fires on critical error events.
	WebhookEventCriticalError = "CriticalError"
	// WebhookEventStackRegression fires when a fixed stack regresses.
	WebhookEventStackRegression = "StackRegression"
	// WebhookEventNewEvent fires on the first occurrence of any stack.
	WebhookEventNewEvent = "NewEvent"
	// WebhookEventCriticalEvent fires on any critical event.
	WebhookEventCriticalEvent = "CriticalEvent"
)

// Webhook is a registered HTTP callback evaluated by the notification stage.
type Webhook struct {
	BaseModel

	// OrganizationID is the owning organization.
	OrganizationID ULID `gorm:"type:varchar(26);not null;index" json:"organization_id"`

	// ProjectID optionally scopes the hook to a single project.
	// Zero means the hook applies to every project in the organization.
	ProjectID ULID `gorm:"type:varchar(26);index" json:"project_id,omitempty"`

	// URL is the delivery endpoint.
	URL string `gorm:"not null;size:2000" json:"url"`

	// EventTypes is the set of conditions this hook subscribes to.
	EventTypes StringSlice `gorm:"type:text;serializer:json" json:"event_types"`

	// IsEnabled toggles the hook without deleting it.
	IsEnabled bool `gorm:"default:true" json:"is_enabled"`

	// Version selects the payload schema built for delivery.
	Version string `gorm:"size:10;default:'v2'" json:"version"`
}

// TableName returns the table name for Webhook.
func (Webhook) TableName() string {
	return "webhooks"
}

// Validate checks that the webhook is valid.
func (w *Webhook) Validate() error {
	if w.OrganizationID.IsZero() {
		return ErrOrganizationIDRequired
	}
	if w.URL == "" {
		return ErrURLRequired
	}
	if len(w.EventTypes) == 0 {
		return ErrWebhookEventTypesRequired
	}
	return nil
}

// SubscribesTo returns true if the hook subscribes to any of the given
// event types.
func (w *Webhook) SubscribesTo(types ...string) bool {
	for _, st := range w.EventTypes {
		for _, t := range types {
			if st == t {
				return true
			}
		}
	}
	return false
}
