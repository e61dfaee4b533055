package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StackStatus represents the lifecycle state of a stack.
type StackStatus string

const (
	// StackStatusOpen indicates an active, unresolved stack.
	StackStatusOpen StackStatus = "open"
	// StackStatusFixed indicates the stack was manually marked fixed.
	StackStatusFixed StackStatus = "fixed"
	// StackStatusRegressed indicates a fixed stack that has recurred.
	StackStatusRegressed StackStatus = "regressed"
	// StackStatusIgnored indicates occurrences are tracked but not surfaced.
	// Session stacks start in this state.
	StackStatusIgnored StackStatus = "ignored"
	// StackStatusDiscarded indicates all associated events are dropped.
	StackStatusDiscarded StackStatus = "discarded"
)

// Tag policy limits applied when merging event tags onto a stack.
const (
	// MaxTagsPerStack caps the stack tag set; excess entries are dropped.
	MaxTagsPerStack = 50
	// MaxTagLength caps individual tag length; longer tags are dropped.
	MaxTagLength = 255
)

// Stack is the persisted grouping of all event occurrences sharing a
// computed signature. It is the deduplicated "issue" record.
type Stack struct {
	BaseModel

	// OrganizationID is the owning organization.
	OrganizationID ULID `gorm:"type:varchar(26);not null;index" json:"organization_id"`

	// ProjectID is the owning project.
	ProjectID ULID `gorm:"type:varchar(26);not null;index" json:"project_id"`

	// SignatureHash is the one-way digest of the ordered signature values.
	SignatureHash string `gorm:"not null;size:40;index" json:"signature_hash"`

	// DuplicateSignature is "projectID:signatureHash" and is unique, enforcing
	// at most one stack per fingerprint per project at the storage layer.
	DuplicateSignature string `gorm:"not null;size:70;uniqueIndex" json:"duplicate_signature"`

	// SignatureInfo holds the named signature fields that produced the hash.
	SignatureInfo DataMap `gorm:"type:text;serializer:json" json:"signature_info,omitempty"`

	// Title is a human-readable summary derived from the triggering event.
	Title string `gorm:"size:1000" json:"title,omitempty"`

	// Type is the event type this stack groups.
	Type string `gorm:"size:100;index" json:"type"`

	// Status is the lifecycle state of the stack.
	Status StackStatus `gorm:"not null;default:'open';size:20;index" json:"status"`

	// TotalOccurrences only ever increases.
	TotalOccurrences int64 `gorm:"default:0" json:"total_occurrences"`

	// FirstOccurrence only ever decreases during counter aggregation.
	FirstOccurrence time.Time `json:"first_occurrence"`

	// LastOccurrence only ever increases during counter aggregation.
	LastOccurrence time.Time `json:"last_occurrence"`

	// DateFixed is when the stack was manually marked fixed.
	DateFixed *Time `json:"date_fixed,omitempty"`

	// FixedInVersion is the semantic version the fix shipped in, if known.
	FixedInVersion string `gorm:"size:100" json:"fixed_in_version,omitempty"`

	// OccurrencesAreCritical marks every new occurrence as critical.
	OccurrencesAreCritical bool `gorm:"default:false" json:"occurrences_are_critical"`

	// DisableNotifications suppresses notification fan-out for this stack.
	DisableNotifications bool `gorm:"default:false" json:"disable_notifications"`

	// IsHidden hides the stack (and suppresses notifications).
	IsHidden bool `gorm:"default:false" json:"is_hidden"`

	// Tags is the merged tag set from all occurrences, capped by policy.
	Tags StringSlice `gorm:"type:text;serializer:json" json:"tags,omitempty"`
}

// TableName returns the table name for Stack.
func (Stack) TableName() string {
	return "stacks"
}

// Validate checks that the stack is valid.
func (s *Stack) Validate() error {
	if s.OrganizationID.IsZero() {
		return ErrOrganizationIDRequired
	}
	if s.ProjectID.IsZero() {
		return ErrProjectIDRequired
	}
	if s.SignatureHash == "" {
		return ErrSignatureHashRequired
	}
	switch s.Status {
	case "", StackStatusOpen, StackStatusFixed, StackStatusRegressed, StackStatusIgnored, StackStatusDiscarded:
	default:
		return ErrInvalidStackStatus
	}
	return nil
}

// BeforeSave defaults the status and keeps the duplicate signature in sync
// with its parts.
func (s *Stack) BeforeSave(tx *gorm.DB) error {
	if s.Status == "" {
		s.Status = StackStatusOpen
	}
	s.DuplicateSignature = DuplicateSignature(s.ProjectID, s.SignatureHash)
	return nil
}

// DuplicateSignature builds the project-scoped uniqueness key for a fingerprint.
func DuplicateSignature(projectID ULID, signatureHash string) string {
	return fmt.Sprintf("%s:%s", projectID, signatureHash)
}

// IsFixed returns true if the stack is currently marked fixed.
func (s *Stack) IsFixed() bool {
	return s.Status == StackStatusFixed
}

// IsRegressed returns true if the stack has regressed.
func (s *Stack) IsRegressed() bool {
	return s.Status == StackStatusRegressed
}

// IsDiscarded returns true if occurrences of this stack are dropped.
func (s *Stack) IsDiscarded() bool {
	return s.Status == StackStatusDiscarded
}

// AllowNotifications returns true unless notifications are disabled or the
// stack is hidden or ignored.
func (s *Stack) AllowNotifications() bool {
	return !s.DisableNotifications && !s.IsHidden && s.Status != StackStatusIgnored
}

// MergeTags merges event tags not already present onto the stack, enforcing
// the tag count and length policy. Returns true if the tag set changed.
func (s *Stack) MergeTags(tags []string) bool {
	changed := false
	existing := make(map[string]struct{}, len(s.Tags))
	for _, t := range s.Tags {
		existing[t] = struct{}{}
	}
	for _, t := range tags {
		if t == "" || len(t) > MaxTagLength {
			continue
		}
		if _, ok := existing[t]; ok {
			continue
		}
		if len(s.Tags) >= MaxTagsPerStack {
			break
		}
		s.Tags = append(s.Tags, t)
		existing[t] = struct{}{}
		changed = true
	}
	return changed
}
