// Package stacking assigns every event to exactly one stack, creating at
// most one new stack per fingerprint even under concurrent ingestion.
package stacking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/lock"
	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "stacking"
	// StagePriority orders this stage.
	StagePriority = 10

	// Signature field names used when no upstream stage contributed any.
	signatureKeyType   = "Type"
	signatureKeySource = "Source"
)

// Per-context errors surfaced by stack resolution.
var (
	// ErrInvalidStackID is recorded when an event's pre-set stack id does
	// not resolve to a stack in the same project.
	ErrInvalidStackID = errors.New("invalid stack id")
	// ErrStackCreation is recorded when the per-fingerprint lock could not
	// be acquired in time.
	ErrStackCreation = errors.New("unable to create new stack")
)

// stackRecord is the batch-local dedup entry for one fingerprint.
type stackRecord struct {
	stack      *models.Stack
	shouldSave bool
}

// Stage resolves or creates the stack for every event in the batch.
type Stage struct {
	core.BaseAction
	log       *slog.Logger
	stacks    repository.StackRepository
	locks     lock.Provider
	formatter plugins.FormattingManager
	publisher messaging.Publisher

	lockHold    time.Duration
	lockAcquire time.Duration
}

// Option configures the stage.
type Option func(*Stage)

// WithLockTimings overrides the stack-creation lock lease and acquire timeout.
func WithLockTimings(hold, acquire time.Duration) Option {
	return func(s *Stage) {
		if hold > 0 {
			s.lockHold = hold
		}
		if acquire > 0 {
			s.lockAcquire = acquire
		}
	}
}

// New creates the stacking stage.
func New(log *slog.Logger, stacks repository.StackRepository, locks lock.Provider, formatter plugins.FormattingManager, publisher messaging.Publisher, opts ...Option) *Stage {
	s := &Stage{
		log:         log.With("stage", StageID),
		stacks:      stacks,
		locks:       locks,
		formatter:   formatter,
		publisher:   publisher,
		lockHold:    10 * time.Second,
		lockAcquire: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// IsCritical marks stacking failures as critical in logs.
func (s *Stage) IsCritical() bool { return true }

// ProcessBatch runs the dedup algorithm over the batch. Resolution failures
// are per-context errors; the batch itself never fails here.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	// Batch-local fingerprint map avoids repeat lookups and repeat locks for
	// duplicate fingerprints within one call.
	local := make(map[string]*stackRecord)
	var created []*models.Stack

	for _, ectx := range contexts {
		if !ectx.ShouldProcess() {
			continue
		}

		var rec *stackRecord
		if !ectx.Event.StackID.IsZero() {
			rec = s.resolvePreset(ctx, ectx, local)
		} else {
			rec = s.resolveByFingerprint(ctx, ectx, local, &created)
		}
		if rec == nil {
			continue
		}

		ectx.Stack = rec.stack

		// A discarded stack drops its events silently.
		if rec.stack.IsDiscarded() {
			ectx.MarkDiscarded()
			continue
		}

		// Merge new tags onto pre-existing stacks.
		if !ectx.IsNew && len(ectx.Event.Tags) > 0 {
			if rec.stack.MergeTags(ectx.Event.Tags) {
				rec.shouldSave = true
			}
		}

		ectx.Event.IsFirstOccurrence = ectx.IsNew
	}

	s.announceCreated(ctx, created)
	s.saveChanged(ctx, local)

	// Write the resolved stack id back onto every event.
	for _, ectx := range contexts {
		if ectx.Stack != nil {
			ectx.Event.StackID = ectx.Stack.ID
		}
	}
	return nil
}

// resolvePreset looks up an explicitly referenced stack and validates that
// it belongs to the event's project.
func (s *Stage) resolvePreset(ctx context.Context, ectx *core.EventContext, local map[string]*stackRecord) *stackRecord {
	stack, err := s.stacks.GetByID(ctx, ectx.Event.StackID)
	if err != nil {
		ectx.SetError(fmt.Errorf("loading stack %s: %w", ectx.Event.StackID, err))
		return nil
	}
	if stack == nil || stack.ProjectID != ectx.Event.ProjectID {
		ectx.SetError(ErrInvalidStackID)
		return nil
	}

	ectx.SignatureHash = stack.SignatureHash
	if rec, ok := local[stack.SignatureHash]; ok {
		return rec
	}
	rec := &stackRecord{stack: stack}
	local[stack.SignatureHash] = rec
	return rec
}

// resolveByFingerprint computes the fingerprint and finds or creates its
// stack, consulting the batch-local map first.
func (s *Stage) resolveByFingerprint(ctx context.Context, ectx *core.EventContext, local map[string]*stackRecord, created *[]*models.Stack) *stackRecord {
	if ectx.SignatureData.Len() == 0 {
		ectx.AddSignatureValue(signatureKeyType, ectx.Event.Type)
		ectx.AddSignatureValue(signatureKeySource, ectx.Event.Source)
	}
	hash := ectx.SignatureData.Hash()
	ectx.SignatureHash = hash

	if rec, ok := local[hash]; ok {
		return rec
	}

	stack, err := s.stacks.GetBySignatureHash(ctx, ectx.Event.ProjectID, hash)
	if err != nil {
		ectx.SetError(fmt.Errorf("looking up stack by fingerprint: %w", err))
		return nil
	}
	if stack != nil {
		rec := &stackRecord{stack: stack}
		local[hash] = rec
		return rec
	}

	stack, isNew, err := s.createStack(ctx, ectx, hash)
	if err != nil {
		ectx.SetError(err)
		return nil
	}
	if isNew {
		// Only the creating event counts as the first occurrence; the new
		// stack's counters already reflect it.
		ectx.IsNew = true
		*created = append(*created, stack)
	}
	rec := &stackRecord{stack: stack}
	local[hash] = rec
	return rec
}

// createStack creates the stack under the per-fingerprint lock, re-checking
// the repository inside the critical section since another process may have
// won the race.
func (s *Stage) createStack(ctx context.Context, ectx *core.EventContext, hash string) (*models.Stack, bool, error) {
	var (
		stack *models.Stack
		isNew bool
	)

	key := lock.StackCreationKey(ectx.Event.ProjectID.String(), hash)
	acquired, err := s.locks.TryUsing(ctx, key, s.lockHold, s.lockAcquire, func(ctx context.Context) error {
		existing, err := s.stacks.GetBySignatureHash(ctx, ectx.Event.ProjectID, hash)
		if err != nil {
			return fmt.Errorf("re-checking fingerprint under lock: %w", err)
		}
		if existing != nil {
			stack = existing
			return nil
		}

		stack = s.buildStack(ectx, hash)
		if err := s.stacks.Create(ctx, stack); err != nil {
			return fmt.Errorf("creating stack: %w", err)
		}
		isNew = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, ErrStackCreation
	}
	return stack, isNew, nil
}

// buildStack seeds a new stack from the triggering event.
func (s *Stage) buildStack(ectx *core.EventContext, hash string) *models.Stack {
	event := ectx.Event

	status := models.StackStatusOpen
	if event.IsSession() {
		status = models.StackStatusIgnored
	}

	stack := &models.Stack{
		OrganizationID:   event.OrganizationID,
		ProjectID:        event.ProjectID,
		SignatureHash:    hash,
		SignatureInfo:    ectx.SignatureData.Items(),
		Title:            s.formatter.GetStackTitle(event),
		Type:             event.Type,
		Status:           status,
		TotalOccurrences: 1,
		FirstOccurrence:  event.Date,
		LastOccurrence:   event.Date,
	}
	stack.MergeTags(event.Tags)
	return stack
}

// announceCreated publishes a single batched entity-added notification for
// all newly created stacks. Best effort.
func (s *Stage) announceCreated(ctx context.Context, created []*models.Stack) {
	if len(created) == 0 {
		return
	}

	ids := make([]string, 0, len(created))
	for _, stack := range created {
		ids = append(ids, stack.ID.String())
	}
	change := messaging.EntityChange{
		ChangeType: messaging.ChangeTypeAdded,
		EntityType: "stack",
		Data: map[string]string{
			"organization_id": created[0].OrganizationID.String(),
			"project_id":      created[0].ProjectID.String(),
			"ids":             strings.Join(ids, ","),
		},
	}
	if err := s.publisher.PublishEntityChanged(ctx, change); err != nil {
		s.log.Warn("publishing new stack announcement", "error", err, "stacks", len(created))
	}
}

// saveChanged bulk-saves every stack flagged dirty by tag merging. Change
// notification is deliberately left to the statistics stage.
func (s *Stage) saveChanged(ctx context.Context, local map[string]*stackRecord) {
	var dirty []*models.Stack
	for _, rec := range local {
		if rec.shouldSave {
			dirty = append(dirty, rec.stack)
		}
	}
	if len(dirty) == 0 {
		return
	}
	if err := s.stacks.SaveBatch(ctx, dirty); err != nil {
		s.log.Error("saving changed stacks", "error", err, "stacks", len(dirty))
	}
}

var _ core.Action = (*Stage)(nil)
