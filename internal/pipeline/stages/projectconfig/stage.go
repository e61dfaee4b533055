// Package projectconfig enqueues the idempotent work item that flags a
// project as configured once its first event arrives.
package projectconfig

import (
	"context"
	"fmt"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "projectconfig"
	// StagePriority orders this stage.
	StagePriority = 50
)

// Enqueuer schedules the configured-flag work item.
type Enqueuer interface {
	EnqueueProjectConfigured(ctx context.Context, projectID models.ULID) error
}

// Stage schedules configured-flag marking for unconfigured projects.
type Stage struct {
	core.BaseAction
	queue Enqueuer
}

// New creates the project-configured stage.
func New(queue Enqueuer) *Stage {
	return &Stage{queue: queue}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that enqueue failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch enqueues one work item per distinct unconfigured project in
// the batch. Queue-side dedup keeps repeats idempotent.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	seen := make(map[models.ULID]bool)
	for _, ectx := range contexts {
		if !ectx.ShouldProcess() || ectx.Project == nil {
			continue
		}
		if models.BoolVal(ectx.Project.IsConfigured) || seen[ectx.Project.ID] {
			continue
		}
		seen[ectx.Project.ID] = true
		if err := s.queue.EnqueueProjectConfigured(ctx, ectx.Project.ID); err != nil {
			return fmt.Errorf("enqueueing project configured marking: %w", err)
		}
	}
	return nil
}

var _ core.Action = (*Stage)(nil)
