package repository

import (
	"context"
	"fmt"

	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
)

// webhookRepo implements WebhookRepository using GORM.
type webhookRepo struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new WebhookRepository.
func NewWebhookRepository(db *gorm.DB) *webhookRepo {
	return &webhookRepo{db: db}
}

// Create creates a new webhook.
func (r *webhookRepo) Create(ctx context.Context, hook *models.Webhook) error {
	if err := hook.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(hook).Error; err != nil {
		return fmt.Errorf("creating webhook: %w", err)
	}
	return nil
}

// GetByOrganizationID retrieves enabled hooks for an organization, including
// project-scoped ones. Delivery decisions filter further by project.
func (r *webhookRepo) GetByOrganizationID(ctx context.Context, orgID models.ULID) ([]*models.Webhook, error) {
	var hooks []*models.Webhook
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_enabled = ?", orgID, true).
		Order("created_at ASC").
		Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("getting webhooks by organization ID: %w", err)
	}
	return hooks, nil
}

// GetByProjectID retrieves enabled hooks scoped to a specific project.
func (r *webhookRepo) GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.Webhook, error) {
	var hooks []*models.Webhook
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_enabled = ?", projectID, true).
		Order("created_at ASC").
		Find(&hooks).Error
	if err != nil {
		return nil, fmt.Errorf("getting webhooks by project ID: %w", err)
	}
	return hooks, nil
}

// Delete deletes a webhook by ID.
func (r *webhookRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Webhook{}).Error; err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return nil
}

// Ensure webhookRepo implements WebhookRepository at compile time.
var _ WebhookRepository = (*webhookRepo)(nil)
