package models

// Organization represents a billing/tenancy boundary owning projects.
type Organization struct {
	BaseModel

	// Name is the display name of the organization.
	Name string `gorm:"not null;size:255" json:"name"`

	// PlanID identifies the subscribed billing plan.
	PlanID string `gorm:"size:100;index" json:"plan_id,omitempty"`

	// RetentionDays is how long events are kept. Zero means unset, in which
	// case the pipeline's default retention window applies.
	RetentionDays int `gorm:"default:0" json:"retention_days"`

	// HasPremiumFeatures enables premium-only pipeline behavior
	// (secondary indexing, notifications, webhooks).
	HasPremiumFeatures bool `gorm:"default:false" json:"has_premium_features"`

	// IsSuspended blocks event processing for the whole organization.
	IsSuspended bool `gorm:"default:false;index" json:"is_suspended"`

	// Settings are organization-level configuration values merged into each
	// pipeline context. Project settings overlay these on key collision.
	Settings SettingsMap `gorm:"type:text;serializer:json" json:"settings,omitempty"`
}

// TableName returns the table name for Organization.
func (Organization) TableName() string {
	return "organizations"
}

// Validate checks that the organization is valid.
func (o *Organization) Validate() error {
	if o.Name == "" {
		return ErrNameRequired
	}
	return nil
}
