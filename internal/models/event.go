package models

import "time"

// Event type values reported by client libraries.
const (
	// EventTypeError is an application error or exception report.
	EventTypeError = "error"
	// EventTypeLog is a log message event.
	EventTypeLog = "log"
	// EventTypeSession is a session heartbeat/beacon event.
	EventTypeSession = "session"
	// EventTypeSessionEnd marks the end of a session.
	EventTypeSessionEnd = "sessionend"
	// EventTypeUsage is a feature usage event.
	EventTypeUsage = "usage"
)

// Well-known keys in the event data bag.
const (
	// DataKeyVersion carries the application version that reported the event.
	DataKeyVersion = "@version"
	// DataKeySubmissionMethod records how the event was submitted.
	DataKeySubmissionMethod = "@submission_method"
	// DataKeyOriginalReferenceID preserves an invalid reference id that was
	// replaced during field truncation.
	DataKeyOriginalReferenceID = "@ref:original"
	// DataKeyLevel carries the log level for log events.
	DataKeyLevel = "@level"
)

// TagCritical marks an event as critical.
const TagCritical = "Critical"

// Event is a single telemetry occurrence submitted by a client library.
type Event struct {
	BaseModel

	// OrganizationID is the owning organization, stamped by the pipeline.
	OrganizationID ULID `gorm:"type:varchar(26);not null;index" json:"organization_id"`

	// ProjectID is the reporting project.
	ProjectID ULID `gorm:"type:varchar(26);not null;index" json:"project_id"`

	// StackID references the stack this event was deduplicated into.
	// Every persisted event carries a stack id from the same project.
	StackID ULID `gorm:"type:varchar(26);index" json:"stack_id,omitempty"`

	// Type is the event type (error, log, session, usage...).
	Type string `gorm:"not null;size:100;index" json:"type"`

	// Source identifies where the event originated (logger name, controller...).
	Source string `gorm:"size:2000" json:"source,omitempty"`

	// Message is the human-readable event message.
	Message string `gorm:"size:2000" json:"message,omitempty"`

	// Date is when the event occurred, preserving the client's UTC offset.
	Date time.Time `gorm:"not null;index" json:"date"`

	// Tags are free-form labels attached by the client.
	Tags StringSlice `gorm:"type:text;serializer:json" json:"tags,omitempty"`

	// Data is an arbitrary key/value bag (version, submission method...).
	Data DataMap `gorm:"type:text;serializer:json" json:"data,omitempty"`

	// ReferenceID is a client-supplied idempotency/reference key.
	ReferenceID string `gorm:"size:32;index" json:"reference_id,omitempty"`

	// Geo is a lat,lon or location hint supplied by the client.
	Geo string `gorm:"size:255" json:"geo,omitempty"`

	// Value is an arbitrary numeric value (timing, count, amount).
	Value float64 `json:"value,omitempty"`

	// IsFirstOccurrence is true when this event created its stack.
	IsFirstOccurrence bool `gorm:"default:false" json:"is_first_occurrence"`

	// IsFixed mirrors the stack's fixed status at persistence time.
	IsFixed bool `gorm:"default:false" json:"is_fixed"`

	// IsHidden mirrors the stack's hidden status at persistence time.
	IsHidden bool `gorm:"default:false" json:"is_hidden"`

	// Idx is the premium secondary index projection of selected data values.
	Idx DataMap `gorm:"type:text;serializer:json" json:"idx,omitempty"`
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "events"
}

// Validate checks that the event is valid.
func (e *Event) Validate() error {
	if e.Type == "" {
		return ErrEventTypeRequired
	}
	if e.Date.IsZero() {
		return ErrEventDateRequired
	}
	if e.ProjectID.IsZero() {
		return ErrProjectIDRequired
	}
	return nil
}

// IsError returns true if this is an error event.
func (e *Event) IsError() bool {
	return e.Type == EventTypeError
}

// IsSession returns true if this is a session event.
func (e *Event) IsSession() bool {
	return e.Type == EventTypeSession || e.Type == EventTypeSessionEnd
}

// Version returns the application version reported with the event, if any.
func (e *Event) Version() string {
	return e.Data[DataKeyVersion]
}

// HasTag returns true if the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (e *Event) AddTag(tag string) {
	if !e.HasTag(tag) {
		e.Tags = append(e.Tags, tag)
	}
}

// SetDataValue sets a key in the data bag, allocating it if needed.
func (e *Event) SetDataValue(key, value string) {
	if e.Data == nil {
		e.Data = DataMap{}
	}
	e.Data[key] = value
}
