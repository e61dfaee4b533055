// Package regression detects reoccurrences of stacks that were marked fixed,
// by date or by semantic version comparison.
package regression

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "regression"
	// StagePriority orders this stage.
	StagePriority = 30
)

// Stage flags the single event that reopens a fixed stack.
type Stage struct {
	core.BaseAction
	log    *slog.Logger
	stacks repository.StackRepository
}

// New creates the regression detection stage.
func New(log *slog.Logger, stacks repository.StackRepository) *Stage {
	return &Stage{log: log.With("stage", StageID), stacks: stacks}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that detection failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch evaluates each fixed stack's group independently; a failure
// in one group never touches the others.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	for _, group := range groupByStack(contexts) {
		stack := group[0].Stack
		if stack.IsRegressed() || stack.DateFixed == nil {
			continue
		}
		if err := s.evaluate(ctx, stack, group); err != nil {
			s.log.Warn("regression evaluation failed for stack",
				"stack_id", stack.ID, "error", err)
		}
	}
	return nil
}

// evaluate finds the triggering event for one stack, if any, and marks the
// regression.
func (s *Stage) evaluate(ctx context.Context, stack *models.Stack, group []*core.EventContext) error {
	var trigger *core.EventContext
	if stack.FixedInVersion == "" {
		trigger = firstAfterFix(stack, group)
	} else {
		trigger = firstAtOrAboveFixVersion(stack, group)
	}
	if trigger == nil {
		return nil
	}

	if err := s.stacks.MarkRegressed(ctx, stack.ID); err != nil {
		return fmt.Errorf("marking stack regressed: %w", err)
	}
	stack.Status = models.StackStatusRegressed
	stack.DateFixed = nil
	stack.FixedInVersion = ""
	trigger.IsRegression = true
	return nil
}

// firstAfterFix returns the first event dated after the fix point.
func firstAfterFix(stack *models.Stack, group []*core.EventContext) *core.EventContext {
	for _, ectx := range group {
		if ectx.Event.Date.After(*stack.DateFixed) {
			return ectx
		}
	}
	return nil
}

// firstAtOrAboveFixVersion groups the stack's events by reported version and
// returns the first event of the first version group not below the fixed-in
// version. Unparseable versions fall back to 0.0.0.
func firstAtOrAboveFixVersion(stack *models.Stack, group []*core.EventContext) *core.EventContext {
	fixed := parseVersion(stack.FixedInVersion)

	seen := make(map[string]bool)
	for _, ectx := range group {
		raw := ectx.Event.Version()
		if seen[raw] {
			continue
		}
		seen[raw] = true
		if !parseVersion(raw).LessThan(fixed) {
			return ectx
		}
	}
	return nil
}

// parseVersion parses a semantic version, defaulting on failure so garbage
// version strings never regress a stack.
func parseVersion(raw string) *semver.Version {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return &semver.Version{}
	}
	return v
}

// groupByStack collects processable contexts per pre-existing stack, ordered
// by event date so "first occurrence after fix" is deterministic.
func groupByStack(contexts []*core.EventContext) map[models.ULID][]*core.EventContext {
	groups := make(map[models.ULID][]*core.EventContext)
	for _, ectx := range contexts {
		if !ectx.ShouldProcess() || ectx.Stack == nil || ectx.IsNew {
			continue
		}
		groups[ectx.Stack.ID] = append(groups[ectx.Stack.ID], ectx)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Event.Date.Before(group[j].Event.Date)
		})
	}
	return groups
}

var _ core.Action = (*Stage)(nil)
