// Package datesanity clamps future-dated events to now and discards events
// that fall outside the organization's retention window.
package datesanity

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline/internal/pipeline/core"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "datesanity"
	// StagePriority orders this stage; it runs first.
	StagePriority = 1
)

// Stage enforces event date sanity.
type Stage struct {
	core.BaseAction
	log *slog.Logger
	// defaultRetentionDays floors the retention window when the organization
	// has none configured or a smaller one.
	defaultRetentionDays int
	now                  func() time.Time
}

// Option configures the stage.
type Option func(*Stage)

// WithDefaultRetentionDays overrides the default retention floor.
func WithDefaultRetentionDays(days int) Option {
	return func(s *Stage) {
		if days > 0 {
			s.defaultRetentionDays = days
		}
	}
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

// New creates the date sanity stage.
func New(log *slog.Logger, opts ...Option) *Stage {
	s := &Stage{
		log:                  log.With("stage", StageID),
		defaultRetentionDays: 3,
		now:                  time.Now,
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

// ProcessBatch applies date sanity to every processable event.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	return core.RunBatchAsSingles(ctx, contexts, s.ProcessEvent)
}

// ProcessEvent clamps a future date, preserving the event's original UTC
// offset, and discards events older than the retention cutoff.
func (s *Stage) ProcessEvent(ctx context.Context, ectx *core.EventContext) error {
	now := s.now()

	if ectx.Event.Date.After(now) {
		ectx.Event.Date = now.In(ectx.Event.Date.Location())
	}

	days := s.defaultRetentionDays
	if ectx.Organization != nil && ectx.Organization.RetentionDays > days {
		days = ectx.Organization.RetentionDays
	}
	cutoff := now.AddDate(0, 0, -days)

	if ectx.Event.Date.Before(cutoff) {
		s.log.Debug("discarding stale event",
			"event_date", ectx.Event.Date, "cutoff", cutoff, "retention_days", days)
		ectx.MarkDiscarded()
	}
	return nil
}

var _ core.Action = (*Stage)(nil)
