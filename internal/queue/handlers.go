package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Handlers bundles the work item handlers and their dependencies.
type Handlers struct {
	log       *slog.Logger
	orgs      repository.OrganizationRepository
	projects  repository.ProjectRepository
	events    repository.EventRepository
	stacks    repository.StackRepository
	webhooks  repository.WebhookRepository
	publisher messaging.Publisher
	builder   plugins.WebhookDataBuilder
	client    *http.Client

	// DefaultRetentionDays floors the per-organization retention window.
	DefaultRetentionDays int
	// WebhookConcurrency bounds parallel deliveries within one work item.
	WebhookConcurrency int
}

// NewHandlers creates the handler set.
func NewHandlers(
	log *slog.Logger,
	orgs repository.OrganizationRepository,
	projects repository.ProjectRepository,
	events repository.EventRepository,
	stacks repository.StackRepository,
	webhooks repository.WebhookRepository,
	publisher messaging.Publisher,
	builder plugins.WebhookDataBuilder,
	webhookTimeout time.Duration,
) *Handlers {
	if webhookTimeout <= 0 {
		webhookTimeout = 30 * time.Second
	}
	return &Handlers{
		log:                  log.With("component", "queue.handlers"),
		orgs:                 orgs,
		projects:             projects,
		events:               events,
		stacks:               stacks,
		webhooks:             webhooks,
		publisher:            publisher,
		builder:              builder,
		client:               &http.Client{Timeout: webhookTimeout},
		DefaultRetentionDays: 3,
		WebhookConcurrency:   10,
	}
}

// RegisterAll installs every handler on the worker.
func (h *Handlers) RegisterAll(w *Worker) {
	w.Register(models.WorkItemTypeProjectConfigured, h.HandleProjectConfigured)
	w.Register(models.WorkItemTypeEventNotification, h.HandleEventNotification)
	w.Register(models.WorkItemTypeWebhookDelivery, h.HandleWebhookDelivery)
	w.Register(models.WorkItemTypeRetentionSweep, h.HandleRetentionSweep)
}

// HandleProjectConfigured marks the project configured.
func (h *Handlers) HandleProjectConfigured(ctx context.Context, item *models.WorkItem) error {
	var payload ProjectConfiguredPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return fmt.Errorf("decoding project configured payload: %w", err)
	}
	if err := h.projects.MarkConfigured(ctx, payload.ProjectID); err != nil {
		return fmt.Errorf("marking project configured: %w", err)
	}
	return nil
}

// HandleEventNotification announces a project notification. Notification
// channels subscribe to the published change stream.
func (h *Handlers) HandleEventNotification(ctx context.Context, item *models.WorkItem) error {
	var payload EventNotificationPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return fmt.Errorf("decoding event notification payload: %w", err)
	}

	event, err := h.events.GetByID(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("loading event for notification: %w", err)
	}
	if event == nil {
		h.log.Warn("notification event no longer exists", "event_id", payload.EventID)
		return nil
	}

	change := messaging.EntityChange{
		ChangeType: messaging.ChangeTypeAdded,
		EntityType: "notification",
		ID:         event.ID.String(),
		Data: map[string]string{
			"project_id":    payload.ProjectID.String(),
			"stack_id":      payload.StackID.String(),
			"is_new":        fmt.Sprintf("%t", payload.IsNew),
			"is_regression": fmt.Sprintf("%t", payload.IsRegression),
			"is_critical":   fmt.Sprintf("%t", payload.IsCritical),
		},
	}
	if err := h.publisher.PublishEntityChanged(ctx, change); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// HandleWebhookDelivery posts the event payload to every hook in the work
// item, bounded by WebhookConcurrency. A single failing hook fails the item
// so delivery retries; hooks that already succeeded will receive duplicates,
// which v2 consumers are expected to tolerate.
func (h *Handlers) HandleWebhookDelivery(ctx context.Context, item *models.WorkItem) error {
	var payload WebhookDeliveryPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return fmt.Errorf("decoding webhook delivery payload: %w", err)
	}

	event, err := h.events.GetByID(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("loading event for webhook delivery: %w", err)
	}
	if event == nil {
		h.log.Warn("webhook event no longer exists", "event_id", payload.EventID)
		return nil
	}

	stack, err := h.stacks.GetByID(ctx, payload.StackID)
	if err != nil {
		return fmt.Errorf("loading stack for webhook delivery: %w", err)
	}

	hooks, err := h.webhooks.GetByOrganizationID(ctx, event.OrganizationID)
	if err != nil {
		return fmt.Errorf("loading webhooks: %w", err)
	}

	wanted := make(map[models.ULID]bool, len(payload.HookIDs))
	for _, id := range payload.HookIDs {
		wanted[id] = true
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.WebhookConcurrency)
	for _, hook := range hooks {
		if !wanted[hook.ID] {
			continue
		}
		hook := hook
		g.Go(func() error {
			body, err := h.builder.BuildPayload(hook.Version, event, stack)
			if err != nil {
				return fmt.Errorf("building payload for hook %s: %w", hook.ID, err)
			}
			return h.deliver(ctx, hook, body)
		})
	}
	return g.Wait()
}

// deliver posts one payload to one hook.
func (h *Handlers) deliver(ctx context.Context, hook *models.Webhook, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "faultline-webhook/"+hook.Version)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook to %s: %w", hook.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", hook.URL, resp.StatusCode)
	}
	h.log.Debug("webhook delivered", "url", hook.URL, "status", resp.StatusCode)
	return nil
}

// HandleRetentionSweep deletes events past the organization's retention
// window. The window never drops below DefaultRetentionDays.
func (h *Handlers) HandleRetentionSweep(ctx context.Context, item *models.WorkItem) error {
	var payload RetentionSweepPayload
	if err := json.Unmarshal([]byte(item.Payload), &payload); err != nil {
		return fmt.Errorf("decoding retention sweep payload: %w", err)
	}

	org, err := h.orgs.GetByID(ctx, payload.OrganizationID)
	if err != nil {
		return fmt.Errorf("loading organization for retention sweep: %w", err)
	}
	if org == nil {
		h.log.Warn("retention sweep organization no longer exists", "organization_id", payload.OrganizationID)
		return nil
	}

	days := org.RetentionDays
	if days < h.DefaultRetentionDays {
		days = h.DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	deleted, err := h.events.DeleteOlderThan(ctx, org.ID, cutoff)
	if err != nil {
		return fmt.Errorf("sweeping events: %w", err)
	}
	if deleted > 0 {
		h.log.Info("retention sweep removed events",
			"organization_id", org.ID, "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
