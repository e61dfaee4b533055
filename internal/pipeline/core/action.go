package core

import (
	"context"
	"log/slog"
)

// Action is one ordered pipeline stage. Lower priority runs first.
type Action interface {
	// Name identifies the stage in logs and metrics.
	Name() string
	// Priority orders the stage; lower runs first.
	Priority() int
	// ContinueOnError reports whether a stage failure is absorbed (logged,
	// contexts untouched) instead of erroring the affected contexts.
	ContinueOnError() bool
	// IsCritical is a logging-severity hint; it does not change control flow.
	IsCritical() bool
	// ProcessBatch processes the whole batch. Most stages delegate to
	// ProcessEvent via RunBatchAsSingles.
	ProcessBatch(ctx context.Context, contexts []*EventContext) error
	// ProcessEvent processes one event.
	ProcessEvent(ctx context.Context, ectx *EventContext) error
}

// BaseAction supplies stage defaults: stop-on-error, non-critical.
// Embed it and override what differs.
type BaseAction struct{}

// ContinueOnError defaults to false.
func (BaseAction) ContinueOnError() bool { return false }

// IsCritical defaults to false.
func (BaseAction) IsCritical() bool { return false }

// ProcessEvent defaults to a no-op for batch-only stages.
func (BaseAction) ProcessEvent(ctx context.Context, ectx *EventContext) error { return nil }

// RunBatchAsSingles is the default batch path: it calls fn for every context
// that still should be processed. A returned error stops the loop and is
// handed to the stage's error containment.
func RunBatchAsSingles(ctx context.Context, contexts []*EventContext, fn func(context.Context, *EventContext) error) error {
	for _, ectx := range contexts {
		if !ectx.ShouldProcess() {
			continue
		}
		if err := fn(ctx, ectx); err != nil {
			return err
		}
	}
	return nil
}

// HandleBatchError applies the stage's error policy to a failed batch
// operation. Continue-on-error stages only log; otherwise every affected
// context is errored with the failure message and stack trace.
func HandleBatchError(log *slog.Logger, action Action, contexts []*EventContext, err error) {
	if err == nil {
		return
	}

	if action.ContinueOnError() {
		if action.IsCritical() {
			log.Error("pipeline stage failed, continuing", "stage", action.Name(), "error", err)
		} else {
			log.Warn("pipeline stage failed, continuing", "stage", action.Name(), "error", err)
		}
		return
	}

	log.Error("pipeline stage failed, erroring contexts",
		"stage", action.Name(), "error", err, "contexts", len(contexts))
	for _, ectx := range contexts {
		if ectx.IsCancelled {
			continue
		}
		ectx.SetError(err)
	}
}
