package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
)

// stackRepo implements StackRepository using GORM with a read-through cache
// keyed by both stack ID and project fingerprint.
type stackRepo struct {
	db    *gorm.DB
	cache cache.Client
}

// NewStackRepository creates a new StackRepository.
func NewStackRepository(db *gorm.DB, c cache.Client) *stackRepo {
	return &stackRepo{db: db, cache: c}
}

// Create creates a new stack. The duplicate-signature unique index rejects a
// second stack for the same (project, signature hash).
func (r *stackRepo) Create(ctx context.Context, stack *models.Stack) error {
	if err := stack.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(stack).Error; err != nil {
		return fmt.Errorf("creating stack: %w", err)
	}
	r.cacheStack(ctx, stack)
	return nil
}

// GetByID retrieves a stack by ID (cached).
func (r *stackRepo) GetByID(ctx context.Context, id models.ULID) (*models.Stack, error) {
	key := cache.StackByIDKey(id.String())
	if data, err := r.cache.Get(ctx, key); err == nil {
		var stack models.Stack
		if err := json.Unmarshal(data, &stack); err == nil {
			return &stack, nil
		}
	}

	var stack models.Stack
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&stack).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stack by ID: %w", err)
	}

	r.cacheStack(ctx, &stack)
	return &stack, nil
}

// GetBySignatureHash retrieves the stack for a project fingerprint.
func (r *stackRepo) GetBySignatureHash(ctx context.Context, projectID models.ULID, signatureHash string) (*models.Stack, error) {
	key := cache.StackBySignatureKey(projectID.String(), signatureHash)
	if data, err := r.cache.Get(ctx, key); err == nil {
		var stack models.Stack
		if err := json.Unmarshal(data, &stack); err == nil {
			return &stack, nil
		}
	}

	var stack models.Stack
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND signature_hash = ?", projectID, signatureHash).
		First(&stack).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting stack by signature hash: %w", err)
	}

	r.cacheStack(ctx, &stack)
	return &stack, nil
}

// SaveBatch persists every given stack and refreshes their cache entries.
func (r *stackRepo) SaveBatch(ctx context.Context, stacks []*models.Stack) error {
	if len(stacks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stack := range stacks {
			if err := stack.Validate(); err != nil {
				return err
			}
			if err := tx.Save(stack).Error; err != nil {
				return fmt.Errorf("saving stack %s: %w", stack.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, stack := range stacks {
		r.cacheStack(ctx, stack)
	}
	return nil
}

// MarkRegressed transitions the stack to regressed status and clears the
// fixed markers so the next fix starts clean.
func (r *stackRepo) MarkRegressed(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.Stack{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           models.StackStatusRegressed,
			"date_fixed":       nil,
			"fixed_in_version": "",
		})
	if result.Error != nil {
		return fmt.Errorf("marking stack regressed: %w", result.Error)
	}
	r.invalidateByID(ctx, id)
	return nil
}

// IncrementEventCounter atomically applies occurrence statistics. The CASE
// expressions keep the update safe under concurrent batches arriving out of
// date order.
func (r *stackRepo) IncrementEventCounter(ctx context.Context, id models.ULID, minDate, maxDate time.Time, count int64) error {
	result := r.db.WithContext(ctx).Model(&models.Stack{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_occurrences": gorm.Expr("total_occurrences + ?", count),
			"first_occurrence":  gorm.Expr("CASE WHEN total_occurrences = 0 OR first_occurrence > ? THEN ? ELSE first_occurrence END", minDate, minDate),
			"last_occurrence":   gorm.Expr("CASE WHEN total_occurrences = 0 OR last_occurrence < ? THEN ? ELSE last_occurrence END", maxDate, maxDate),
		})
	if result.Error != nil {
		return fmt.Errorf("incrementing stack event counter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrStackNotFound
	}
	r.invalidateByID(ctx, id)
	return nil
}

// cacheStack refreshes both cache entries for the stack. Failures are
// ignored; the cache is an optimization.
func (r *stackRepo) cacheStack(ctx context.Context, stack *models.Stack) {
	data, err := json.Marshal(stack)
	if err != nil {
		return
	}
	_ = r.cache.Set(ctx, cache.StackByIDKey(stack.ID.String()), data, 0)
	_ = r.cache.Set(ctx, cache.StackBySignatureKey(stack.ProjectID.String(), stack.SignatureHash), data, 0)
}

// invalidateByID drops the ID-keyed entry and, when the stack can still be
// loaded, the fingerprint-keyed one as well.
func (r *stackRepo) invalidateByID(ctx context.Context, id models.ULID) {
	key := cache.StackByIDKey(id.String())
	if data, err := r.cache.Get(ctx, key); err == nil {
		var stack models.Stack
		if err := json.Unmarshal(data, &stack); err == nil {
			_ = r.cache.Delete(ctx, cache.StackBySignatureKey(stack.ProjectID.String(), stack.SignatureHash))
		}
	}
	_ = r.cache.Delete(ctx, key)
}

// Ensure stackRepo implements StackRepository at compile time.
var _ StackRepository = (*stackRepo)(nil)
