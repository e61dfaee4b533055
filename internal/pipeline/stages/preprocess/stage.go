// Package preprocess hands the batch to enrichment plugins before stacking.
package preprocess

import (
	"context"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/plugins"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "preprocess"
	// StagePriority orders this stage.
	StagePriority = 5
)

// Stage delegates to the plugin manager's pre-processing hook.
type Stage struct {
	core.BaseAction
	processor plugins.EventProcessor
}

// New creates the pre-processing stage.
func New(processor plugins.EventProcessor) *Stage {
	return &Stage{processor: processor}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that plugin failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch runs the plugin hook over the still-processable events.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	events := make([]*models.Event, 0, len(contexts))
	for _, ectx := range contexts {
		if ectx.ShouldProcess() {
			events = append(events, ectx.Event)
		}
	}
	if len(events) == 0 {
		return nil
	}
	return s.processor.EventBatchProcessing(ctx, events)
}

var _ core.Action = (*Stage)(nil)
