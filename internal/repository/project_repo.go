package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
)

// projectRepo implements ProjectRepository using GORM with a read-through
// cache for point reads.
type projectRepo struct {
	db    *gorm.DB
	cache cache.Client
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *gorm.DB, c cache.Client) *projectRepo {
	return &projectRepo{db: db, cache: c}
}

// Create creates a new project.
func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID (cached).
func (r *projectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	key := cache.ProjectKey(id.String())
	if data, err := r.cache.Get(ctx, key); err == nil {
		var project models.Project
		if err := json.Unmarshal(data, &project); err == nil {
			return &project, nil
		}
	}

	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting project by ID: %w", err)
	}

	if data, err := json.Marshal(&project); err == nil {
		_ = r.cache.Set(ctx, key, data, 0)
	}
	return &project, nil
}

// GetByOrganizationID retrieves all projects for an organization.
func (r *projectRepo) GetByOrganizationID(ctx context.Context, orgID models.ULID) ([]*models.Project, error) {
	var projects []*models.Project
	if err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("getting projects by organization ID: %w", err)
	}
	return projects, nil
}

// Update updates an existing project and invalidates its cache entry.
func (r *projectRepo) Update(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	_ = r.cache.Delete(ctx, cache.ProjectKey(project.ID.String()))
	return nil
}

// MarkConfigured sets the project's configured flag. Idempotent: marking an
// already configured project is a no-op.
func (r *projectRepo) MarkConfigured(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumn("is_configured", true)
	if result.Error != nil {
		return fmt.Errorf("marking project configured: %w", result.Error)
	}
	_ = r.cache.Delete(ctx, cache.ProjectKey(id.String()))
	return nil
}

// Ensure projectRepo implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepo)(nil)
