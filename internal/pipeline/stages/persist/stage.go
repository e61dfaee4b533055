// Package persist bulk-inserts the batch's surviving events.
package persist

import (
	"context"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "persist"
	// StagePriority orders this stage.
	StagePriority = 40
)

// Stage writes events through the event repository.
type Stage struct {
	core.BaseAction
	events repository.EventRepository
}

// New creates the persistence stage.
func New(events repository.EventRepository) *Stage {
	return &Stage{events: events}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// IsCritical marks persistence as essential to correctness.
func (s *Stage) IsCritical() bool { return true }

// ProcessBatch inserts every surviving event in one bulk operation. An
// insert failure errors the affected contexts via the stage error policy.
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
	return s.events.AddBatch(ctx, events)
}

var _ core.Action = (*Stage)(nil)
