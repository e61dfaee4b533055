package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
)

// eventBatchSize bounds a single INSERT statement during bulk adds.
const eventBatchSize = 500

// eventRepo implements EventRepository using GORM.
type eventRepo struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *eventRepo {
	return &eventRepo{db: db}
}

// AddBatch inserts all events in a single bulk operation.
func (r *eventRepo) AddBatch(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("validating event: %w", err)
		}
	}
	if err := r.db.WithContext(ctx).CreateInBatches(events, eventBatchSize).Error; err != nil {
		return fmt.Errorf("adding event batch: %w", err)
	}
	return nil
}

// GetByID retrieves an event by ID.
func (r *eventRepo) GetByID(ctx context.Context, id models.ULID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting event by ID: %w", err)
	}
	return &event, nil
}

// GetByReferenceID retrieves the most recent event in a project carrying the
// given client reference ID.
func (r *eventRepo) GetByReferenceID(ctx context.Context, projectID models.ULID, referenceID string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND reference_id = ?", projectID, referenceID).
		Order("date DESC").
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting event by reference ID: %w", err)
	}
	return &event, nil
}

// GetByStackID retrieves events for a stack ordered by date descending.
func (r *eventRepo) GetByStackID(ctx context.Context, stackID models.ULID, limit int) ([]*models.Event, error) {
	var events []*models.Event
	query := r.db.WithContext(ctx).Where("stack_id = ?", stackID).Order("date DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("getting events by stack ID: %w", err)
	}
	return events, nil
}

// CountByProjectID returns the number of events for a project.
func (r *eventRepo) CountByProjectID(ctx context.Context, projectID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Event{}).Where("project_id = ?", projectID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting events by project ID: %w", err)
	}
	return count, nil
}

// DeleteOlderThan deletes events for an organization dated before the cutoff.
func (r *eventRepo) DeleteOlderThan(ctx context.Context, orgID models.ULID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND date < ?", orgID, cutoff).
		Delete(&models.Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting events older than %s: %w", cutoff, result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure eventRepo implements EventRepository at compile time.
var _ EventRepository = (*eventRepo)(nil)
