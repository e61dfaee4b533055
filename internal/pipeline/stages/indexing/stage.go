// Package indexing projects event data into the secondary index field set
// for organizations with premium features.
package indexing

import (
	"context"
	"strconv"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "indexing"
	// StagePriority orders this stage.
	StagePriority = 35

	// Type suffixes appended to projected keys.
	suffixString = "-s"
	suffixNumber = "-n"
)

// Stage builds the premium secondary index projection.
type Stage struct {
	core.BaseAction
}

// New creates the indexing stage.
func New() *Stage {
	return &Stage{}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ProcessBatch projects every processable event.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	return core.RunBatchAsSingles(ctx, contexts, s.ProcessEvent)
}

// ProcessEvent copies user data values into Event.Idx with type-suffixed
// keys. Reserved "@" keys are never projected.
func (s *Stage) ProcessEvent(ctx context.Context, ectx *core.EventContext) error {
	if ectx.Organization == nil || !ectx.Organization.HasPremiumFeatures {
		return nil
	}
	if len(ectx.Event.Data) == 0 {
		return nil
	}

	idx := make(models.DataMap, len(ectx.Event.Data))
	for key, value := range ectx.Event.Data {
		if strings.HasPrefix(key, "@") {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" {
			continue
		}
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			idx[name+suffixNumber] = value
		} else {
			idx[name+suffixString] = value
		}
	}
	if len(idx) > 0 {
		ectx.Event.Idx = idx
	}
	return nil
}

var _ core.Action = (*Stage)(nil)
