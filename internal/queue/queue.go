// Package queue implements the durable background work queue. Work items are
// persisted through the repository layer, claimed by a polling worker pool,
// and retried with backoff until they complete or exhaust their attempts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repository"
)

// Queue enqueues durable work items with optional deduplication.
type Queue struct {
	repo        repository.WorkItemRepository
	log         *slog.Logger
	maxAttempts int
}

// New creates a new Queue.
func New(repo repository.WorkItemRepository, log *slog.Logger, maxAttempts int) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{repo: repo, log: log.With("component", "queue"), maxAttempts: maxAttempts}
}

// Enqueue persists a work item. When dedupKey is non-empty and a pending or
// running item with the same type and key exists, the enqueue is a no-op.
func (q *Queue) Enqueue(ctx context.Context, itemType models.WorkItemType, dedupKey string, payload any, priority int) error {
	if dedupKey != "" {
		dup, err := q.repo.FindDuplicatePending(ctx, itemType, dedupKey)
		if err != nil {
			return fmt.Errorf("checking for duplicate work item: %w", err)
		}
		if dup != nil {
			q.log.Debug("skipping duplicate work item", "type", itemType, "dedup_key", dedupKey)
			return nil
		}
	}

	var body string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling work item payload: %w", err)
		}
		body = string(data)
	}

	item := &models.WorkItem{
		Type:        itemType,
		DedupKey:    dedupKey,
		Payload:     body,
		Priority:    priority,
		MaxAttempts: q.maxAttempts,
	}
	if err := q.repo.Create(ctx, item); err != nil {
		return fmt.Errorf("enqueueing work item: %w", err)
	}
	q.log.Debug("enqueued work item", "type", itemType, "id", item.ID, "priority", priority)
	return nil
}

// EnqueueProjectConfigured schedules the first-event configured flag update.
func (q *Queue) EnqueueProjectConfigured(ctx context.Context, projectID models.ULID) error {
	payload := ProjectConfiguredPayload{ProjectID: projectID}
	return q.Enqueue(ctx, models.WorkItemTypeProjectConfigured, "project:"+projectID.String(), payload, PriorityLow)
}

// EnqueueEventNotification schedules a project notification for an event.
func (q *Queue) EnqueueEventNotification(ctx context.Context, p EventNotificationPayload) error {
	return q.Enqueue(ctx, models.WorkItemTypeEventNotification, "", p, PriorityNormal)
}

// EnqueueWebhookDelivery schedules webhook fan-out for an event.
func (q *Queue) EnqueueWebhookDelivery(ctx context.Context, p WebhookDeliveryPayload) error {
	return q.Enqueue(ctx, models.WorkItemTypeWebhookDelivery, "", p, PriorityNormal)
}

// EnqueueRetentionSweep schedules a retention sweep for one organization.
func (q *Queue) EnqueueRetentionSweep(ctx context.Context, orgID models.ULID) error {
	payload := RetentionSweepPayload{OrganizationID: orgID}
	return q.Enqueue(ctx, models.WorkItemTypeRetentionSweep, "retention:"+orgID.String(), payload, PriorityLow)
}
