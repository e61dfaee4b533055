// Package counters emits processed/discarded event metrics for the batch.
package counters

import (
	"context"

	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "counters"
	// StagePriority orders this stage.
	StagePriority = 90
)

// Stage increments the processing counters.
type Stage struct {
	core.BaseAction
	metrics metrics.Client
}

// New creates the counters stage.
func New(m metrics.Client) *Stage {
	return &Stage{metrics: m}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that metric failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch counts processed, paid-processed, discarded events and newly
// created stacks.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	var processed, paid, discarded, created int64
	for _, ectx := range contexts {
		if ectx.IsDiscarded {
			discarded++
			continue
		}
		if !ectx.ShouldProcess() {
			continue
		}
		processed++
		if ectx.IsNew {
			created++
		}
		if ectx.Organization != nil && ectx.Organization.HasPremiumFeatures {
			paid++
		}
	}

	if processed > 0 {
		s.metrics.Counter(metrics.CounterEventsProcessed, processed)
	}
	if paid > 0 {
		s.metrics.Counter(metrics.CounterEventsPaidProcessed, paid)
	}
	if discarded > 0 {
		s.metrics.Counter(metrics.CounterEventsDiscarded, discarded)
	}
	if created > 0 {
		s.metrics.Counter(metrics.CounterStacksCreated, created)
	}
	return nil
}

var _ core.Action = (*Stage)(nil)
