// Package truncate caps oversized event fields, trims the tag set, and
// replaces invalid reference ids with a generated sentinel.
package truncate

import (
	"context"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/google/uuid"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "truncate"
	// StagePriority orders this stage.
	StagePriority = 6

	// minReferenceIDLength and maxReferenceIDLength bound valid client
	// supplied reference ids.
	minReferenceIDLength = 8
	maxReferenceIDLength = 32
)

// Stage normalizes event field sizes.
type Stage struct {
	core.BaseAction
	// maxFieldLength caps Message and Source.
	maxFieldLength int
}

// Option configures the stage.
type Option func(*Stage)

// WithMaxFieldLength overrides the Message/Source cap.
func WithMaxFieldLength(n int) Option {
	return func(s *Stage) {
		if n > 0 {
			s.maxFieldLength = n
		}
	}
}

// New creates the truncation stage.
func New(opts ...Option) *Stage {
	s := &Stage{maxFieldLength: 2000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ProcessBatch truncates every processable event.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	return core.RunBatchAsSingles(ctx, contexts, s.ProcessEvent)
}

// ProcessEvent applies the field policy. Re-running on an already truncated
// event is a no-op.
func (s *Stage) ProcessEvent(ctx context.Context, ectx *core.EventContext) error {
	event := ectx.Event

	if len(event.Message) > s.maxFieldLength {
		event.Message = event.Message[:s.maxFieldLength]
	}
	if len(event.Source) > s.maxFieldLength {
		event.Source = event.Source[:s.maxFieldLength]
	}

	event.Tags = trimTags(event.Tags)

	if event.ReferenceID != "" && !isValidReferenceID(event.ReferenceID) {
		event.SetDataValue(models.DataKeyOriginalReferenceID, event.ReferenceID)
		event.ReferenceID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return nil
}

// trimTags drops empty and oversized tags and caps the set size.
func trimTags(tags models.StringSlice) models.StringSlice {
	if len(tags) == 0 {
		return tags
	}
	out := make(models.StringSlice, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || len(t) > models.MaxTagLength {
			continue
		}
		out = append(out, t)
		if len(out) == models.MaxTagsPerStack {
			break
		}
	}
	return out
}

// isValidReferenceID accepts 8-32 chars of [a-zA-Z0-9-].
func isValidReferenceID(id string) bool {
	if len(id) < minReferenceIDLength || len(id) > maxReferenceIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

var _ core.Action = (*Stage)(nil)
