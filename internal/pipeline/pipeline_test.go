package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/lock"
	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db       *gorm.DB
	pipeline *EventPipeline
	metrics  *metrics.Memory
	stacks   repository.StackRepository
	org      *models.Organization
	project  *models.Project
}

func newFixture(t *testing.T, mutate func(org *models.Organization, project *models.Project)) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Organization{}, &models.Project{}, &models.Event{},
		&models.Stack{}, &models.Webhook{}, &models.WorkItem{},
	))

	c := cache.NewMemory(time.Minute)
	orgs := repository.NewOrganizationRepository(db, c)
	projects := repository.NewProjectRepository(db, c)
	stacks := repository.NewStackRepository(db, c)

	org := &models.Organization{Name: "Acme"}
	project := &models.Project{Name: "Checkout"}
	if mutate != nil {
		mutate(org, project)
	}
	require.NoError(t, orgs.Create(ctx, org))
	project.OrganizationID = org.ID
	require.NoError(t, projects.Create(ctx, project))

	log := slog.New(slog.DiscardHandler)
	mem := metrics.NewMemory()
	q := queue.New(repository.NewWorkItemRepository(db), log, 3)

	p := NewDefault(Dependencies{
		Logger:           log,
		Projects:         projects,
		Orgs:             orgs,
		Events:           repository.NewEventRepository(db),
		Stacks:           stacks,
		Webhooks:         repository.NewWebhookRepository(db),
		Locks:            lock.NewMemory(),
		Publisher:        messaging.NewCapturePublisher(),
		Queue:            q,
		Metrics:          mem,
		Processor:        plugins.NoopProcessor{},
		Formatter:        plugins.DefaultFormatter{},
		RetentionDays:    3,
		MaxFieldLength:   2000,
		StackLockHold:    time.Second,
		StackLockAcquire: time.Second,
	})

	return &fixture{db: db, pipeline: p, metrics: mem, stacks: stacks, org: org, project: project}
}

func (f *fixture) event(message string, date time.Time) *models.Event {
	return &models.Event{
		ProjectID: f.project.ID,
		Type:      models.EventTypeError,
		Source:    "MyApp.Controller",
		Message:   message,
		Date:      date,
	}
}

func TestPipeline_SharedFingerprintBatch(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()

	contexts, err := f.pipeline.Run(context.Background(), []*models.Event{
		f.event("NullReferenceException", now.Add(-2*time.Hour)),
		f.event("NullReferenceException", now.Add(-time.Hour)),
		f.event("NullReferenceException", now),
	})
	require.NoError(t, err)
	require.Len(t, contexts, 3)

	var stackCount int64
	require.NoError(t, f.db.Model(&models.Stack{}).Count(&stackCount).Error)
	assert.Equal(t, int64(1), stackCount)

	stackID := contexts[0].Event.StackID
	for _, ectx := range contexts {
		assert.False(t, ectx.HasError)
		assert.False(t, ectx.IsCancelled)
		assert.Equal(t, stackID, ectx.Event.StackID)
		assert.False(t, ectx.Event.ID.IsZero())
	}

	stored, err := f.stacks.GetByID(context.Background(), stackID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.TotalOccurrences)
	assert.WithinDuration(t, now.Add(-2*time.Hour), stored.FirstOccurrence.UTC(), time.Second)
	assert.WithinDuration(t, now, stored.LastOccurrence.UTC(), time.Second)

	assert.Equal(t, int64(3), f.metrics.CounterValue(metrics.CounterEventsProcessed))
}

func TestPipeline_StaleEventDiscardedWithoutPersistence(t *testing.T) {
	f := newFixture(t, nil)

	ectx, err := f.pipeline.RunSingle(context.Background(), f.event("old", time.Now().UTC().AddDate(0, 0, -4)))
	require.NoError(t, err)

	assert.True(t, ectx.IsCancelled)
	assert.True(t, ectx.IsDiscarded)
	assert.False(t, ectx.HasError)

	var eventCount, stackCount int64
	require.NoError(t, f.db.Model(&models.Event{}).Count(&eventCount).Error)
	require.NoError(t, f.db.Model(&models.Stack{}).Count(&stackCount).Error)
	assert.Zero(t, eventCount)
	assert.Zero(t, stackCount)

	// A fully discarded batch still reaches the counters stage.
	assert.Equal(t, int64(1), f.metrics.CounterValue(metrics.CounterEventsDiscarded))
	assert.Zero(t, f.metrics.CounterValue(metrics.CounterEventsProcessed))
}

func TestPipeline_OrganizationRetentionKeepsOlderEvents(t *testing.T) {
	f := newFixture(t, func(org *models.Organization, project *models.Project) {
		org.RetentionDays = 30
	})

	ectx, err := f.pipeline.RunSingle(context.Background(), f.event("tenDaysOld", time.Now().UTC().AddDate(0, 0, -10)))
	require.NoError(t, err)
	assert.False(t, ectx.IsCancelled)
	assert.False(t, ectx.Event.StackID.IsZero())
}

func TestPipeline_DiscardedStackDropsEvent(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now().UTC()

	first, err := f.pipeline.RunSingle(context.Background(), f.event("boom", now))
	require.NoError(t, err)
	require.False(t, first.Event.StackID.IsZero())

	require.NoError(t, f.db.Model(&models.Stack{}).
		Where("id = ?", first.Event.StackID).
		Update("status", models.StackStatusDiscarded).Error)
	// New fixture pipeline still holds a cached copy; invalidate it the way
	// a real status change would.
	stored, err := f.stacks.GetByID(context.Background(), first.Event.StackID)
	require.NoError(t, err)
	stored.Status = models.StackStatusDiscarded
	require.NoError(t, f.stacks.SaveBatch(context.Background(), []*models.Stack{stored}))

	second, err := f.pipeline.RunSingle(context.Background(), f.event("boom", now))
	require.NoError(t, err)
	assert.True(t, second.IsCancelled)
	assert.True(t, second.IsDiscarded)

	var eventCount int64
	require.NoError(t, f.db.Model(&models.Event{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)

	after, err := f.stacks.GetByID(context.Background(), first.Event.StackID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.TotalOccurrences)
}

func TestPipeline_SuspendedOrganizationDiscardsBatch(t *testing.T) {
	f := newFixture(t, func(org *models.Organization, project *models.Project) {
		org.IsSuspended = true
	})

	contexts, err := f.pipeline.Run(context.Background(), []*models.Event{f.event("boom", time.Now().UTC())})
	require.NoError(t, err)
	assert.True(t, contexts[0].IsDiscarded)

	var eventCount int64
	require.NoError(t, f.db.Model(&models.Event{}).Count(&eventCount).Error)
	assert.Zero(t, eventCount)
	assert.Equal(t, int64(1), f.metrics.CounterValue(metrics.CounterEventsDiscarded))
}

func TestPipeline_Preconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := f.pipeline.Run(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	preset := f.event("boom", now)
	preset.ID = models.NewULID()
	_, err = f.pipeline.Run(ctx, []*models.Event{preset})
	assert.ErrorIs(t, err, ErrEventIDPreset)

	other := f.event("boom", now)
	other.ProjectID = models.NewULID()
	_, err = f.pipeline.Run(ctx, []*models.Event{f.event("boom", now), other})
	assert.ErrorIs(t, err, ErrMixedProjects)
}

func TestPipeline_MissingProjectIsFatal(t *testing.T) {
	f := newFixture(t, nil)

	event := f.event("boom", time.Now().UTC())
	event.ProjectID = models.NewULID()
	_, err := f.pipeline.Run(context.Background(), []*models.Event{event})
	assert.ErrorIs(t, err, models.ErrProjectNotFound)
}

func TestPipeline_SeedsPropertiesProjectWins(t *testing.T) {
	f := newFixture(t, func(org *models.Organization, project *models.Project) {
		org.Settings = models.SettingsMap{"sample_rate": "10", "region": "eu"}
		project.Settings = models.SettingsMap{"sample_rate": "50"}
	})

	ectx, err := f.pipeline.RunSingle(context.Background(), f.event("boom", time.Now().UTC()))
	require.NoError(t, err)

	v, ok := ectx.GetProperty("sample_rate")
	require.True(t, ok)
	assert.Equal(t, "50", v)
	v, ok = ectx.GetProperty("region")
	require.True(t, ok)
	assert.Equal(t, "eu", v)
}

func TestPipeline_ProjectConfiguredWorkItemEnqueued(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.pipeline.RunSingle(context.Background(), f.event("boom", time.Now().UTC()))
	require.NoError(t, err)

	var items []models.WorkItem
	require.NoError(t, f.db.Where("type = ?", models.WorkItemTypeProjectConfigured).Find(&items).Error)
	require.Len(t, items, 1)
}

func TestPipeline_StagesSortedByPriority(t *testing.T) {
	f := newFixture(t, nil)

	last := -1
	for _, stage := range f.pipeline.stages {
		assert.GreaterOrEqual(t, stage.Priority(), last)
		last = stage.Priority()
	}
	assert.Len(t, f.pipeline.stages, 13)
}
