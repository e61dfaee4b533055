// Package notify decides, per event, whether email notifications or webhook
// deliveries should be queued.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "notify"
	// StagePriority orders this stage.
	StagePriority = 70
)

// Enqueuer schedules notification and webhook work items.
type Enqueuer interface {
	EnqueueEventNotification(ctx context.Context, p queue.EventNotificationPayload) error
	EnqueueWebhookDelivery(ctx context.Context, p queue.WebhookDeliveryPayload) error
}

// Stage evaluates notification fan-out per event.
type Stage struct {
	core.BaseAction
	log      *slog.Logger
	queue    Enqueuer
	webhooks repository.WebhookRepository
}

// New creates the notification fan-out stage.
func New(log *slog.Logger, q Enqueuer, webhooks repository.WebhookRepository) *Stage {
	return &Stage{log: log.With("stage", StageID), queue: q, webhooks: webhooks}
}

// Name returns the stage identifier.
func (s *Stage) Name() string { return StageID }

// Priority returns the stage ordering.
func (s *Stage) Priority() int { return StagePriority }

// ContinueOnError reports that fan-out failures never block the batch.
func (s *Stage) ContinueOnError() bool { return true }

// ProcessBatch evaluates every processable event. The organization's hooks
// are loaded once per batch.
func (s *Stage) ProcessBatch(ctx context.Context, contexts []*core.EventContext) error {
	var hooks []*models.Webhook
	hooksLoaded := false

	for _, ectx := range contexts {
		if !s.eligible(ectx) {
			continue
		}

		conditions := evaluateConditions(ectx)

		if s.recipientsInterested(ectx, conditions) {
			if err := s.queue.EnqueueEventNotification(ctx, queue.EventNotificationPayload{
				EventID:          ectx.Event.ID,
				StackID:          ectx.Stack.ID,
				ProjectID:        ectx.Event.ProjectID,
				IsNew:            ectx.IsNew,
				IsRegression:     ectx.IsRegression,
				IsCritical:       conditions.critical,
				TotalOccurrences: ectx.Stack.TotalOccurrences,
			}); err != nil {
				return fmt.Errorf("enqueueing event notification: %w", err)
			}
		}

		satisfied := conditions.webhookEventTypes()
		if len(satisfied) == 0 {
			continue
		}

		if !hooksLoaded {
			var err error
			hooks, err = s.webhooks.GetByOrganizationID(ctx, ectx.Event.OrganizationID)
			if err != nil {
				return fmt.Errorf("loading webhooks: %w", err)
			}
			hooksLoaded = true
		}

		var matched []models.ULID
		for _, hook := range hooks {
			if !hook.ProjectID.IsZero() && hook.ProjectID != ectx.Event.ProjectID {
				continue
			}
			if hook.SubscribesTo(satisfied...) {
				matched = append(matched, hook.ID)
			}
		}
		if len(matched) == 0 {
			continue
		}

		if err := s.queue.EnqueueWebhookDelivery(ctx, queue.WebhookDeliveryPayload{
			EventID:   ectx.Event.ID,
			StackID:   ectx.Stack.ID,
			EventType: satisfied[0],
			HookIDs:   matched,
		}); err != nil {
			return fmt.Errorf("enqueueing webhook delivery: %w", err)
		}
	}
	return nil
}

// eligible gates fan-out: premium organizations only, and the stack must
// allow notifications.
func (s *Stage) eligible(ectx *core.EventContext) bool {
	if !ectx.ShouldProcess() || ectx.Stack == nil {
		return false
	}
	if ectx.Organization == nil || !ectx.Organization.HasPremiumFeatures {
		return false
	}
	return ectx.Stack.AllowNotifications()
}

// recipientsInterested reports whether any configured recipient's settings
// match the event's conditions.
func (s *Stage) recipientsInterested(ectx *core.EventContext, c conditions) bool {
	for _, settings := range ectx.Project.NotificationSettings {
		if !settings.HasInterest() {
			continue
		}
		switch {
		case settings.ReportNewErrors && c.newError:
		case settings.ReportCriticalErrors && c.criticalError:
		case settings.ReportEventRegressions && c.regression:
		case settings.ReportNewEvents && c.newEvent:
		case settings.ReportCriticalEvents && c.critical:
		default:
			continue
		}
		return true
	}
	return false
}

// conditions are the notification triggers satisfied by one event.
type conditions struct {
	newError      bool
	criticalError bool
	regression    bool
	newEvent      bool
	critical      bool
}

func evaluateConditions(ectx *core.EventContext) conditions {
	critical := ectx.Event.HasTag(models.TagCritical)
	return conditions{
		newError:      ectx.IsNew && ectx.Event.IsError(),
		criticalError: critical && ectx.Event.IsError(),
		regression:    ectx.IsRegression,
		newEvent:      ectx.IsNew,
		critical:      critical,
	}
}

// webhookEventTypes returns the satisfied webhook event types, most specific
// first.
func (c conditions) webhookEventTypes() []string {
	var types []string
	if c.newError {
		types = append(types, models.WebhookEventNewError)
	}
	if c.criticalError {
		types = append(types, models.WebhookEventCriticalError)
	}
	if c.regression {
		types = append(types, models.WebhookEventStackRegression)
	}
	if c.newEvent {
		types = append(types, models.WebhookEventNewEvent)
	}
	if c.critical {
		types = append(types, models.WebhookEventCriticalEvent)
	}
	return types
}

var _ core.Action = (*Stage)(nil)
