package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxLastErrorLength bounds the stored error message from a failed attempt.
const maxLastErrorLength = 4096

// workItemRepo implements WorkItemRepository using GORM.
type workItemRepo struct {
	db *gorm.DB
}

// NewWorkItemRepository creates a new WorkItemRepository.
func NewWorkItemRepository(db *gorm.DB) *workItemRepo {
	return &workItemRepo{db: db}
}

// Create persists a new work item.
func (r *workItemRepo) Create(ctx context.Context, item *models.WorkItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.Status == "" {
		item.Status = models.WorkItemStatusPending
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("creating work item: %w", err)
	}
	return nil
}

// FindDuplicatePending finds a pending or running item with the same type and
// dedup key. Items without a dedup key never deduplicate.
func (r *workItemRepo) FindDuplicatePending(ctx context.Context, itemType models.WorkItemType, dedupKey string) (*models.WorkItem, error) {
	if dedupKey == "" {
		return nil, nil
	}
	var item models.WorkItem
	err := r.db.WithContext(ctx).
		Where("type = ? AND dedup_key = ? AND status IN ?", itemType, dedupKey,
			[]models.WorkItemStatus{models.WorkItemStatusPending, models.WorkItemStatusRunning}).
		First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("finding duplicate pending work item: %w", err)
	}
	return &item, nil
}

// Acquire atomically claims the next runnable item for the worker. It selects
// the highest priority runnable item with SELECT FOR UPDATE SKIP LOCKED so
// multiple workers never claim the same row.
func (r *workItemRepo) Acquire(ctx context.Context, workerID string) (*models.WorkItem, error) {
	var item *models.WorkItem

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate models.WorkItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND (next_run_at IS NULL OR next_run_at <= ?)",
				models.WorkItemStatusPending, time.Now()).
			Order("priority DESC, created_at ASC").
			First(&candidate).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return fmt.Errorf("selecting work item: %w", err)
		}

		candidate.MarkRunning(workerID)
		if err := tx.Save(&candidate).Error; err != nil {
			return fmt.Errorf("claiming work item: %w", err)
		}
		item = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Complete marks an item as successfully finished.
func (r *workItemRepo) Complete(ctx context.Context, id models.ULID) error {
	now := models.Now()
	result := r.db.WithContext(ctx).Model(&models.WorkItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       models.WorkItemStatusCompleted,
			"completed_at": &now,
			"locked_by":    "",
			"locked_at":    nil,
			"last_error":   "",
		})
	if result.Error != nil {
		return fmt.Errorf("completing work item: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. Items with attempts remaining go back to
// pending with a delayed next run; exhausted items are marked failed.
func (r *workItemRepo) Fail(ctx context.Context, id models.ULID, itemErr error, backoff time.Duration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.WorkItem
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			return fmt.Errorf("loading work item for failure: %w", err)
		}

		msg := itemErr.Error()
		if len(msg) > maxLastErrorLength {
			msg = msg[:maxLastErrorLength]
		}
		item.LastError = msg
		item.LockedBy = ""
		item.LockedAt = nil

		if item.CanRetry() {
			item.Status = models.WorkItemStatusPending
			next := models.Now().Add(backoff)
			item.NextRunAt = &next
		} else {
			item.Status = models.WorkItemStatusFailed
			now := models.Now()
			item.CompletedAt = &now
		}

		if err := tx.Save(&item).Error; err != nil {
			return fmt.Errorf("recording work item failure: %w", err)
		}
		return nil
	})
}

// DeleteFinishedBefore deletes completed and failed items older than the
// given time.
func (r *workItemRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.WorkItemStatus{models.WorkItemStatusCompleted, models.WorkItemStatusFailed}, before).
		Delete(&models.WorkItem{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished work items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure workItemRepo implements WorkItemRepository at compile time.
var _ WorkItemRepository = (*workItemRepo)(nil)
