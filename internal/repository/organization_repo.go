package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/models"
	"gorm.io/gorm"
)

// organizationRepo implements OrganizationRepository using GORM with a
// read-through cache for point reads.
type organizationRepo struct {
	db    *gorm.DB
	cache cache.Client
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *gorm.DB, c cache.Client) *organizationRepo {
	return &organizationRepo{db: db, cache: c}
}

// Create creates a new organization.
func (r *organizationRepo) Create(ctx context.Context, org *models.Organization) error {
	if err := org.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by ID (cached).
func (r *organizationRepo) GetByID(ctx context.Context, id models.ULID) (*models.Organization, error) {
	key := cache.OrganizationKey(id.String())
	if data, err := r.cache.Get(ctx, key); err == nil {
		var org models.Organization
		if err := json.Unmarshal(data, &org); err == nil {
			return &org, nil
		}
	}

	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting organization by ID: %w", err)
	}

	if data, err := json.Marshal(&org); err == nil {
		_ = r.cache.Set(ctx, key, data, 0)
	}
	return &org, nil
}

// GetAll retrieves all organizations.
func (r *organizationRepo) GetAll(ctx context.Context) ([]*models.Organization, error) {
	var orgs []*models.Organization
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("getting all organizations: %w", err)
	}
	return orgs, nil
}

// Update updates an existing organization and invalidates its cache entry.
func (r *organizationRepo) Update(ctx context.Context, org *models.Organization) error {
	if err := org.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(org).Error; err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	_ = r.cache.Delete(ctx, cache.OrganizationKey(org.ID.String()))
	return nil
}

// Ensure organizationRepo implements OrganizationRepository at compile time.
var _ OrganizationRepository = (*organizationRepo)(nil)
