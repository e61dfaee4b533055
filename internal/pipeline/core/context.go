// Package core defines the event pipeline building blocks: the per-event
// mutable context, the stage contract, and the error containment policy
// stages share.
package core

import (
	"runtime/debug"

	"github.com/faultlinehq/faultline/internal/models"
)

// EventContext is the mutable work record for one event moving through the
// pipeline. It is owned by a single pipeline invocation; stages mutate it in
// place and must not retain it past their call.
type EventContext struct {
	// Event is the telemetry event being processed.
	Event *models.Event
	// Project and Organization are resolved once per batch and shared by
	// every context in it.
	Project      *models.Project
	Organization *models.Organization
	// Stack is resolved or created by the stacking stage.
	Stack *models.Stack

	// SignatureData accumulates the ordered fields that produce the dedup
	// fingerprint. Upstream enrichment stages contribute values before the
	// stacking stage computes the hash.
	SignatureData *SignatureData
	// SignatureHash is the computed fingerprint digest.
	SignatureHash string

	// IsNew is set when this event created its stack.
	IsNew bool
	// IsRegression is set on the single event that triggered a regression.
	IsRegression bool
	// IsCancelled stops further processing of this event.
	IsCancelled bool
	// IsDiscarded marks a deliberate, non-error drop.
	IsDiscarded bool
	// HasError marks the event as failed; the caller decides its fate.
	HasError bool
	// ErrorMessage and StackTrace describe the failure when HasError is set.
	ErrorMessage string
	StackTrace   string

	props map[string]string
}

// NewEventContext creates a context for one event.
func NewEventContext(event *models.Event) *EventContext {
	return &EventContext{
		Event:         event,
		SignatureData: NewSignatureData(),
		props:         make(map[string]string),
	}
}

// SetError records a failure on the context and captures the current stack
// trace. The event is excluded from later stages that honor ShouldProcess.
func (c *EventContext) SetError(err error) {
	c.HasError = true
	if err != nil {
		c.ErrorMessage = err.Error()
	}
	c.StackTrace = string(debug.Stack())
}

// MarkCancelled stops further processing without treating the event as failed.
func (c *EventContext) MarkCancelled() {
	c.IsCancelled = true
}

// MarkDiscarded cancels the event and flags it as a deliberate drop.
func (c *EventContext) MarkDiscarded() {
	c.IsCancelled = true
	c.IsDiscarded = true
}

// ShouldProcess reports whether later stages should still touch this event.
func (c *EventContext) ShouldProcess() bool {
	return !c.IsCancelled && !c.HasError
}

// SetProperty stores a per-run property on the context.
func (c *EventContext) SetProperty(key, value string) {
	c.props[key] = value
}

// GetProperty returns a per-run property.
func (c *EventContext) GetProperty(key string) (string, bool) {
	v, ok := c.props[key]
	return v, ok
}

// AddSignatureValue contributes an ordered signature field. The first write
// for a key wins; later writes are ignored so enrichment stages cannot
// destabilize an already contributed fingerprint field.
func (c *EventContext) AddSignatureValue(key, value string) {
	c.SignatureData.Add(key, value)
}
