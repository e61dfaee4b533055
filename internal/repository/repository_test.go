package repository

import (
	"context"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Organization{},
		&models.Project{},
		&models.Event{},
		&models.Stack{},
		&models.Webhook{},
		&models.WorkItem{},
	)
	require.NoError(t, err)

	return db
}

func seedOrgAndProject(t *testing.T, db *gorm.DB, c cache.Client) (*models.Organization, *models.Project) {
	t.Helper()
	ctx := context.Background()

	org := &models.Organization{Name: "Acme", RetentionDays: 30}
	require.NoError(t, NewOrganizationRepository(db, c).Create(ctx, org))

	project := &models.Project{OrganizationID: org.ID, Name: "Checkout"}
	require.NoError(t, NewProjectRepository(db, c).Create(ctx, project))

	return org, project
}

func TestOrganizationRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewOrganizationRepository(db, c)
	ctx := context.Background()

	org := &models.Organization{Name: "Acme", HasPremiumFeatures: true}
	require.NoError(t, repo.Create(ctx, org))
	assert.False(t, org.ID.IsZero())

	got, err := repo.GetByID(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme", got.Name)
	assert.True(t, got.HasPremiumFeatures)

	// Second read is served from cache.
	again, err := repo.GetByID(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, got.ID, again.ID)
}

func TestOrganizationRepo_GetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrganizationRepository(db, cache.NewMemory(time.Minute))

	got, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrganizationRepo_Update_InvalidatesCache(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewOrganizationRepository(db, c)
	ctx := context.Background()

	org := &models.Organization{Name: "Acme"}
	require.NoError(t, repo.Create(ctx, org))

	// Prime the cache.
	_, err := repo.GetByID(ctx, org.ID)
	require.NoError(t, err)

	org.Name = "Acme Renamed"
	require.NoError(t, repo.Update(ctx, org))

	got, err := repo.GetByID(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme Renamed", got.Name)
}

func TestProjectRepo_MarkConfigured(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewProjectRepository(db, c)
	ctx := context.Background()

	_, project := seedOrgAndProject(t, db, c)
	assert.False(t, models.BoolVal(project.IsConfigured))

	require.NoError(t, repo.MarkConfigured(ctx, project.ID))

	got, err := repo.GetByID(ctx, project.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, models.BoolVal(got.IsConfigured))

	// Idempotent.
	require.NoError(t, repo.MarkConfigured(ctx, project.ID))
}

func TestEventRepo_AddBatchAndQuery(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewEventRepository(db)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	stackID := models.NewULID()

	now := time.Now().UTC().Truncate(time.Second)
	events := []*models.Event{
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: stackID, Type: models.EventTypeError, Date: now.Add(-time.Hour)},
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: stackID, Type: models.EventTypeError, Date: now},
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: models.NewULID(), Type: models.EventTypeLog, Date: now},
	}
	require.NoError(t, repo.AddBatch(ctx, events))

	count, err := repo.CountByProjectID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	byStack, err := repo.GetByStackID(ctx, stackID, 10)
	require.NoError(t, err)
	require.Len(t, byStack, 2)
	// Newest first.
	assert.True(t, byStack[0].Date.After(byStack[1].Date) || byStack[0].Date.Equal(byStack[1].Date))

	got, err := repo.GetByID(ctx, events[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, events[0].StackID, got.StackID)
}

func TestEventRepo_GetByReferenceID(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewEventRepository(db)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.AddBatch(ctx, []*models.Event{
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: models.NewULID(), Type: models.EventTypeError, Date: now.Add(-time.Hour), ReferenceID: "order-12345"},
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: models.NewULID(), Type: models.EventTypeError, Date: now, ReferenceID: "order-12345"},
	}))

	got, err := repo.GetByReferenceID(ctx, project.ID, "order-12345")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, now, got.Date, time.Second)

	missing, err := repo.GetByReferenceID(ctx, project.ID, "order-99999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEventRepo_AddBatch_ValidatesEvents(t *testing.T) {
	db := newTestDB(t)
	repo := NewEventRepository(db)

	err := repo.AddBatch(context.Background(), []*models.Event{
		{ProjectID: models.NewULID(), Type: models.EventTypeError, Date: time.Now()},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrOrganizationIDRequired)
}

func TestEventRepo_DeleteOlderThan(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewEventRepository(db)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	now := time.Now().UTC()
	require.NoError(t, repo.AddBatch(ctx, []*models.Event{
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: models.NewULID(), Type: models.EventTypeError, Date: now.AddDate(0, 0, -10)},
		{OrganizationID: org.ID, ProjectID: project.ID, StackID: models.NewULID(), Type: models.EventTypeError, Date: now},
	}))

	deleted, err := repo.DeleteOlderThan(ctx, org.ID, now.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.CountByProjectID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStackRepo_CreateAndGetBySignatureHash(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewStackRepository(db, c)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	now := time.Now().UTC()
	stack := &models.Stack{
		OrganizationID:  org.ID,
		ProjectID:       project.ID,
		SignatureHash:   "51d1b95b3c0a82e4be5627a28c68baf5e30d0a4e",
		Title:           "NullReferenceException",
		Type:            models.EventTypeError,
		FirstOccurrence: now,
		LastOccurrence:  now,
	}
	require.NoError(t, repo.Create(ctx, stack))
	assert.Equal(t, models.StackStatusOpen, stack.Status)

	got, err := repo.GetBySignatureHash(ctx, project.ID, stack.SignatureHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stack.ID, got.ID)

	missing, err := repo.GetBySignatureHash(ctx, project.ID, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStackRepo_Create_RejectsDuplicateSignature(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewStackRepository(db, c)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	now := time.Now().UTC()
	first := &models.Stack{
		OrganizationID: org.ID, ProjectID: project.ID,
		SignatureHash: "aaaa", Title: "one", Type: models.EventTypeError,
		FirstOccurrence: now, LastOccurrence: now,
	}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.Stack{
		OrganizationID: org.ID, ProjectID: project.ID,
		SignatureHash: "aaaa", Title: "two", Type: models.EventTypeError,
		FirstOccurrence: now, LastOccurrence: now,
	}
	err := repo.Create(ctx, second)
	require.Error(t, err)
}

func TestStackRepo_IncrementEventCounter(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewStackRepository(db, c)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stack := &models.Stack{
		OrganizationID: org.ID, ProjectID: project.ID,
		SignatureHash: "bbbb", Title: "boom", Type: models.EventTypeError,
		FirstOccurrence: base, LastOccurrence: base, TotalOccurrences: 1,
	}
	require.NoError(t, repo.Create(ctx, stack))

	// Later batch extends the last occurrence.
	require.NoError(t, repo.IncrementEventCounter(ctx, stack.ID, base.Add(time.Hour), base.Add(2*time.Hour), 3))
	got, err := repo.GetByID(ctx, stack.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.TotalOccurrences)
	assert.Equal(t, base, got.FirstOccurrence.UTC())
	assert.Equal(t, base.Add(2*time.Hour), got.LastOccurrence.UTC())

	// Out-of-order batch lowers first occurrence without touching last.
	require.NoError(t, repo.IncrementEventCounter(ctx, stack.ID, base.Add(-time.Hour), base.Add(-time.Hour), 1))
	got, err = repo.GetByID(ctx, stack.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TotalOccurrences)
	assert.Equal(t, base.Add(-time.Hour), got.FirstOccurrence.UTC())
	assert.Equal(t, base.Add(2*time.Hour), got.LastOccurrence.UTC())
}

func TestStackRepo_IncrementEventCounter_Missing(t *testing.T) {
	db := newTestDB(t)
	repo := NewStackRepository(db, cache.NewMemory(time.Minute))

	err := repo.IncrementEventCounter(context.Background(), models.NewULID(), time.Now(), time.Now(), 1)
	assert.ErrorIs(t, err, models.ErrStackNotFound)
}

func TestStackRepo_MarkRegressed(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewStackRepository(db, c)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	now := time.Now().UTC()
	fixedAt := now.Add(-time.Hour)
	stack := &models.Stack{
		OrganizationID: org.ID, ProjectID: project.ID,
		SignatureHash: "cccc", Title: "boom", Type: models.EventTypeError,
		Status: models.StackStatusFixed, DateFixed: &fixedAt, FixedInVersion: "1.2.0",
		FirstOccurrence: now, LastOccurrence: now,
	}
	require.NoError(t, repo.Create(ctx, stack))

	require.NoError(t, repo.MarkRegressed(ctx, stack.ID))

	got, err := repo.GetByID(ctx, stack.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StackStatusRegressed, got.Status)
	assert.Nil(t, got.DateFixed)
	assert.Empty(t, got.FixedInVersion)
}

func TestWebhookRepo_GetByOrganizationID_FiltersDisabled(t *testing.T) {
	db := newTestDB(t)
	c := cache.NewMemory(time.Minute)
	repo := NewWebhookRepository(db)
	ctx := context.Background()

	org, project := seedOrgAndProject(t, db, c)
	require.NoError(t, repo.Create(ctx, &models.Webhook{
		OrganizationID: org.ID, ProjectID: project.ID,
		URL: "https://hooks.example.com/a", EventTypes: models.StringSlice{models.WebhookEventNewError},
		IsEnabled: true,
	}))
	require.NoError(t, repo.Create(ctx, &models.Webhook{
		OrganizationID: org.ID,
		URL:            "https://hooks.example.com/b", EventTypes: models.StringSlice{models.WebhookEventStackRegression},
		IsEnabled: false,
	}))

	hooks, err := repo.GetByOrganizationID(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "https://hooks.example.com/a", hooks[0].URL)

	scoped, err := repo.GetByProjectID(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "https://hooks.example.com/a", scoped[0].URL)
}

func TestWorkItemRepo_AcquireLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkItemRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.WorkItem{
		Type: models.WorkItemTypeWebhookDelivery, Payload: `{"hook":"a"}`, Priority: 1,
	}))
	require.NoError(t, repo.Create(ctx, &models.WorkItem{
		Type: models.WorkItemTypeProjectConfigured, Payload: `{"project":"b"}`, Priority: 5,
	}))

	// Highest priority first.
	item, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, models.WorkItemTypeProjectConfigured, item.Type)
	assert.Equal(t, models.WorkItemStatusRunning, item.Status)
	assert.Equal(t, "worker-1", item.LockedBy)
	assert.Equal(t, 1, item.AttemptCount)

	require.NoError(t, repo.Complete(ctx, item.ID))

	second, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, models.WorkItemTypeWebhookDelivery, second.Type)

	// Queue drained.
	third, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestWorkItemRepo_FailAndRetry(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkItemRepository(db)
	ctx := context.Background()

	item := &models.WorkItem{Type: models.WorkItemTypeWebhookDelivery, MaxAttempts: 2}
	require.NoError(t, repo.Create(ctx, item))

	claimed, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, repo.Fail(ctx, claimed.ID, assert.AnError, time.Minute))

	var reloaded models.WorkItem
	require.NoError(t, db.First(&reloaded, "id = ?", claimed.ID).Error)
	assert.Equal(t, models.WorkItemStatusPending, reloaded.Status)
	require.NotNil(t, reloaded.NextRunAt)
	assert.True(t, reloaded.NextRunAt.After(time.Now()))
	assert.NotEmpty(t, reloaded.LastError)

	// Backed-off items are not runnable yet.
	none, err := repo.Acquire(ctx, "worker-2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWorkItemRepo_FailExhaustsAttempts(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkItemRepository(db)
	ctx := context.Background()

	item := &models.WorkItem{Type: models.WorkItemTypeEventNotification, MaxAttempts: 1}
	require.NoError(t, repo.Create(ctx, item))

	claimed, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, repo.Fail(ctx, claimed.ID, assert.AnError, time.Minute))

	var reloaded models.WorkItem
	require.NoError(t, db.First(&reloaded, "id = ?", claimed.ID).Error)
	assert.Equal(t, models.WorkItemStatusFailed, reloaded.Status)
	assert.NotNil(t, reloaded.CompletedAt)
}

func TestWorkItemRepo_FindDuplicatePending(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkItemRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.WorkItem{
		Type: models.WorkItemTypeProjectConfigured, DedupKey: "project:abc",
	}))

	dup, err := repo.FindDuplicatePending(ctx, models.WorkItemTypeProjectConfigured, "project:abc")
	require.NoError(t, err)
	assert.NotNil(t, dup)

	none, err := repo.FindDuplicatePending(ctx, models.WorkItemTypeProjectConfigured, "project:other")
	require.NoError(t, err)
	assert.Nil(t, none)

	// Empty dedup keys never match.
	none, err = repo.FindDuplicatePending(ctx, models.WorkItemTypeProjectConfigured, "")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWorkItemRepo_DeleteFinishedBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewWorkItemRepository(db)
	ctx := context.Background()

	item := &models.WorkItem{Type: models.WorkItemTypeRetentionSweep}
	require.NoError(t, repo.Create(ctx, item))
	claimed, err := repo.Acquire(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, claimed.ID))

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
