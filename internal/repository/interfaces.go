// Package repository defines data access interfaces for faultline entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching. Point reads of organizations, projects,
// and stacks are read-through cached; every mutation invalidates the
// affected cache keys.
package repository

import (
	"context"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// OrganizationRepository defines operations for organization persistence.
type OrganizationRepository interface {
	// Create creates a new organization.
	Create(ctx context.Context, org *models.Organization) error
	// GetByID retrieves an organization by ID (cached). Returns nil when
	// the organization does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Organization, error)
	// GetAll retrieves all organizations.
	GetAll(ctx context.Context) ([]*models.Organization, error)
	// Update updates an existing organization and invalidates its cache entry.
	Update(ctx context.Context, org *models.Organization) error
}

// ProjectRepository defines operations for project persistence.
type ProjectRepository interface {
	// Create creates a new project.
	Create(ctx context.Context, project *models.Project) error
	// GetByID retrieves a project by ID (cached). Returns nil when the
	// project does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.Project, error)
	// GetByOrganizationID retrieves all projects for an organization.
	GetByOrganizationID(ctx context.Context, orgID models.ULID) ([]*models.Project, error)
	// Update updates an existing project and invalidates its cache entry.
	Update(ctx context.Context, project *models.Project) error
	// MarkConfigured sets the project's configured flag. Idempotent.
	MarkConfigured(ctx context.Context, id models.ULID) error
}

// EventRepository defines operations for event persistence.
type EventRepository interface {
	// AddBatch inserts all events in a single bulk operation.
	AddBatch(ctx context.Context, events []*models.Event) error
	// GetByID retrieves an event by ID. Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Event, error)
	// GetByReferenceID retrieves the most recent event in a project with the
	// given client reference ID. Returns nil when not found.
	GetByReferenceID(ctx context.Context, projectID models.ULID, referenceID string) (*models.Event, error)
	// GetByStackID retrieves events for a stack ordered by date descending.
	GetByStackID(ctx context.Context, stackID models.ULID, limit int) ([]*models.Event, error)
	// CountByProjectID returns the number of events for a project.
	CountByProjectID(ctx context.Context, projectID models.ULID) (int64, error)
	// DeleteOlderThan deletes events for an organization dated before the
	// cutoff. Used by the retention sweep.
	DeleteOlderThan(ctx context.Context, orgID models.ULID, cutoff time.Time) (int64, error)
}

// StackRepository defines operations for stack persistence and the atomic
// occurrence counter used by statistics aggregation.
type StackRepository interface {
	// Create creates a new stack. The duplicate-signature unique index
	// rejects a second stack for the same (project, signature hash).
	Create(ctx context.Context, stack *models.Stack) error
	// GetByID retrieves a stack by ID (cached). Returns nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Stack, error)
	// GetBySignatureHash retrieves the stack for a project fingerprint
	// (cache-then-repository). Returns nil when no stack exists yet.
	GetBySignatureHash(ctx context.Context, projectID models.ULID, signatureHash string) (*models.Stack, error)
	// SaveBatch persists every given stack and refreshes their cache
	// entries. Downstream change notification is the caller's concern.
	SaveBatch(ctx context.Context, stacks []*models.Stack) error
	// MarkRegressed transitions the stack to regressed status.
	MarkRegressed(ctx context.Context, id models.ULID) error
	// IncrementEventCounter atomically applies occurrence statistics:
	// TotalOccurrences += count; FirstOccurrence is lowered only if minDate
	// is earlier (or the total was zero); LastOccurrence is raised only if
	// maxDate is later.
	IncrementEventCounter(ctx context.Context, id models.ULID, minDate, maxDate time.Time, count int64) error
}

// WebhookRepository defines operations for webhook persistence.
type WebhookRepository interface {
	// Create creates a new webhook.
	Create(ctx context.Context, hook *models.Webhook) error
	// GetByOrganizationID retrieves enabled hooks for an organization,
	// including project-scoped ones.
	GetByOrganizationID(ctx context.Context, orgID models.ULID) ([]*models.Webhook, error)
	// GetByProjectID retrieves enabled hooks scoped to a specific project.
	GetByProjectID(ctx context.Context, projectID models.ULID) ([]*models.Webhook, error)
	// Delete deletes a webhook by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// WorkItemRepository defines operations for the durable work queue.
type WorkItemRepository interface {
	// Create persists a new work item.
	Create(ctx context.Context, item *models.WorkItem) error
	// FindDuplicatePending finds a pending/running item with the same type
	// and dedup key. Returns nil when none exists.
	FindDuplicatePending(ctx context.Context, itemType models.WorkItemType, dedupKey string) (*models.WorkItem, error)
	// Acquire atomically claims the next runnable item for the worker.
	// Returns nil when no items are available.
	Acquire(ctx context.Context, workerID string) (*models.WorkItem, error)
	// Complete marks an item as successfully finished.
	Complete(ctx context.Context, id models.ULID) error
	// Fail records a failed attempt. Items with attempts remaining are
	// rescheduled after backoff; exhausted items are marked failed.
	Fail(ctx context.Context, id models.ULID, itemErr error, backoff time.Duration) error
	// DeleteFinishedBefore deletes completed/failed items older than the
	// given time.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
