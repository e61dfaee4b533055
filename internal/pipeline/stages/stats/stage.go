// Package stats aggregates occurrence statistics per stack and applies them
// atomically through the stack repository.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "stats"
	// StagePriority orders this stage.
	StagePriority = 60
)

// Stage increments stack occurrence counters for non-new events.
type Stage struct {
	core.BaseAction
	log    *slog.Logger
	stacks repository.StackRepository
}

// New creates the statistics aggregation stage.
func New(log *slog.Logger, stacks repository.StackRepository) *Stage {
	return &Stage{log: log.With("stage", StageID), stacks: stacks}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// IsCritical marks counter failures as critical in logs.
func (s *Stage) IsCritical() bool { return true }

// ProcessBatch groups non-new contexts by stack and applies one atomic
// increment per group. A failing group errors only its own contexts.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	groups := make(map[models.ULID][]*core.EventContext)
	for _, ectx := range contexts {
		// Newly created stacks already carry correct counters.
		if !ectx.ShouldProcess() || ectx.Stack == nil || ectx.IsNew {
			continue
		}
		groups[ectx.Stack.ID] = append(groups[ectx.Stack.ID], ectx)
	}

	for stackID, group := range groups {
		count := int64(len(group))
		minDate, maxDate := dateBounds(group)

		if err := s.stacks.IncrementEventCounter(ctx, stackID, minDate, maxDate, count); err != nil {
			s.log.Error("incrementing stack occurrence counters",
				"stack_id", stackID, "count", count, "error", err)
			for _, ectx := range group {
				ectx.SetError(err)
			}
			continue
		}

		// Mirror onto the in-memory stack so the notification stage sees
		// fresh totals without re-reading storage. Every context in the
		// group shares the same stack instance.
		applyBounds(group, minDate, maxDate, count)
	}
	return nil
}

// dateBounds returns the min and max event dates in a group.
func dateBounds(group []*core.EventContext) (time.Time, time.Time) {
	minDate := group[0].Event.Date
	maxDate := group[0].Event.Date
	for _, ectx := range group[1:] {
		if ectx.Event.Date.Before(minDate) {
			minDate = ectx.Event.Date
		}
		if ectx.Event.Date.After(maxDate) {
			maxDate = ectx.Event.Date
		}
	}
	return minDate, maxDate
}

// applyBounds mirrors the atomic update onto the shared in-memory stack.
func applyBounds(group []*core.EventContext, minDate, maxDate time.Time, count int64) {
	stack := group[0].Stack
	if stack.TotalOccurrences == 0 || stack.FirstOccurrence.After(minDate) {
		stack.FirstOccurrence = minDate
	}
	if stack.LastOccurrence.Before(maxDate) {
		stack.LastOccurrence = maxDate
	}
	stack.TotalOccurrences += count
}

var _ core.Action = (*Stage)(nil)
