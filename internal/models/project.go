package models

// NotificationSettings controls which event conditions a recipient wants
// project email notifications for.
type NotificationSettings struct {
	ReportNewErrors        bool `json:"report_new_errors"`
	ReportCriticalErrors   bool `json:"report_critical_errors"`
	ReportEventRegressions bool `json:"report_event_regressions"`
	ReportNewEvents        bool `json:"report_new_events"`
	ReportCriticalEvents   bool `json:"report_critical_events"`
}

// HasInterest returns true if any reporting flag is enabled.
func (n NotificationSettings) HasInterest() bool {
	return n.ReportNewErrors || n.ReportCriticalErrors || n.ReportEventRegressions ||
		n.ReportNewEvents || n.ReportCriticalEvents
}

// Project represents an application reporting events into the system.
type Project struct {
	BaseModel

	// OrganizationID is the owning organization.
	OrganizationID ULID `gorm:"type:varchar(26);not null;index" json:"organization_id"`

	// Name is the display name of the project.
	Name string `gorm:"not null;size:255" json:"name"`

	// IsConfigured is set once the first event has been received.
	// Nil means the configured check has not run yet.
	IsConfigured *bool `json:"is_configured,omitempty"`

	// Settings are project-level configuration values. They overlay the
	// organization settings in each pipeline context.
	Settings SettingsMap `gorm:"type:text;serializer:json" json:"settings,omitempty"`

	// NotificationSettings maps a recipient user id to their preferences.
	NotificationSettings map[string]NotificationSettings `gorm:"type:text;serializer:json" json:"notification_settings,omitempty"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// Validate checks that the project is valid.
func (p *Project) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.OrganizationID.IsZero() {
		return ErrOrganizationIDRequired
	}
	return nil
}
