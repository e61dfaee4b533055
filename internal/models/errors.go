package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation and lookup errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrOrganizationIDRequired indicates a required organization ID field is zero.
	ErrOrganizationIDRequired = errors.New("organization_id is required")

	// ErrProjectIDRequired indicates a required project ID field is zero.
	ErrProjectIDRequired = errors.New("project_id is required")

	// ErrEventTypeRequired indicates a required event type field is empty.
	ErrEventTypeRequired = errors.New("event type is required")

	// ErrEventDateRequired indicates a required event date field is zero.
	ErrEventDateRequired = errors.New("event date is required")

	// ErrSignatureHashRequired indicates a required signature hash field is empty.
	ErrSignatureHashRequired = errors.New("signature_hash is required")

	// ErrInvalidStackStatus indicates an unrecognized stack status value.
	ErrInvalidStackStatus = errors.New("invalid stack status")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrWebhookEventTypesRequired indicates a webhook with no subscribed event types.
	ErrWebhookEventTypesRequired = errors.New("at least one event type is required")

	// ErrWorkItemTypeRequired indicates a required work item type field is empty.
	ErrWorkItemTypeRequired = errors.New("work item type is required")

	// ErrOrganizationNotFound indicates the organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrProjectNotFound indicates the project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrStackNotFound indicates the stack does not exist.
	ErrStackNotFound = errors.New("stack not found")
)
