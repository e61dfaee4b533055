// Package critical tags events whose stack flags all occurrences critical.
package critical

import (
	"context"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "critical"
	// StagePriority orders this stage.
	StagePriority = 20
)

// Stage marks events on critical stacks.
type Stage struct {
	core.BaseAction
}

// New creates the criticality marking stage.
func New() *Stage {
	return &Stage{}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that marking failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch marks every processable event.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	return core.RunBatchAsSingles(ctx, contexts, s.ProcessEvent)
}

// ProcessEvent tags the event critical when its stack demands it.
func (s *Stage) ProcessEvent(ctx context.Context, ectx *core.EventContext) error {
	if ectx.Stack != nil && ectx.Stack.OccurrencesAreCritical {
		ectx.Event.AddTag(models.TagCritical)
	}
	return nil
}

var _ core.Action = (*Stage)(nil)
