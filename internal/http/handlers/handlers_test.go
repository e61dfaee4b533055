package handlers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/lock"
	"github.com/faultlinehq/faultline/internal/messaging"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline"
	"github.com/faultlinehq/faultline/internal/plugins"
	"github.com/faultlinehq/faultline/internal/queue"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db      *gorm.DB
	stacks  repository.StackRepository
	events  repository.EventRepository
	ingest  *EventsHandler
	project *models.Project
}

func newTestEnv(t *testing.T) *testEnv {
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
	events := repository.NewEventRepository(db)

	org := &models.Organization{Name: "Acme"}
	require.NoError(t, orgs.Create(ctx, org))
	project := &models.Project{Name: "Checkout", OrganizationID: org.ID}
	require.NoError(t, projects.Create(ctx, project))

	log := slog.New(slog.DiscardHandler)
	p := pipeline.NewDefault(pipeline.Dependencies{
		Logger:           log,
		Projects:         projects,
		Orgs:             orgs,
		Events:           events,
		Stacks:           stacks,
		Webhooks:         repository.NewWebhookRepository(db),
		Locks:            lock.NewMemory(),
		Publisher:        messaging.NewCapturePublisher(),
		Queue:            queue.New(repository.NewWorkItemRepository(db), log, 3),
		Metrics:          metrics.NewMemory(),
		Processor:        plugins.NoopProcessor{},
		Formatter:        plugins.DefaultFormatter{},
		RetentionDays:    3,
		MaxFieldLength:   2000,
		StackLockHold:    time.Second,
		StackLockAcquire: time.Second,
	})

	return &testEnv{
		db:      db,
		stacks:  stacks,
		events:  events,
		ingest:  NewEventsHandler(log, p),
		project: project,
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	se, ok := err.(huma.StatusError)
	require.True(t, ok, "expected a status error, got %v", err)
	return se.GetStatus()
}

func TestIngestEvents_ProcessesBatch(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.ingest.IngestEvents(context.Background(), &IngestEventsInput{
		ProjectID: env.project.ID.String(),
		Body: []EventSubmission{
			{Type: models.EventTypeError, Source: "MyApp.Controller", Message: "boom"},
			{Type: models.EventTypeError, Source: "MyApp.Controller", Message: "boom"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Body.Accepted)
	assert.Zero(t, out.Body.Failed)
	require.Len(t, out.Body.Results, 2)
	assert.Equal(t, "processed", out.Body.Results[0].Status)
	assert.True(t, out.Body.Results[0].IsNew)
	assert.False(t, out.Body.Results[1].IsNew)
	assert.Equal(t, out.Body.Results[0].StackID, out.Body.Results[1].StackID)
	assert.NotEmpty(t, out.Body.Results[0].EventID)
}

func TestIngestEvents_StaleEventDiscarded(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.ingest.IngestEvents(context.Background(), &IngestEventsInput{
		ProjectID: env.project.ID.String(),
		Body: []EventSubmission{
			{Type: models.EventTypeError, Message: "old", Date: time.Now().UTC().AddDate(0, 0, -10)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Body.Discarded)
	assert.Equal(t, "discarded", out.Body.Results[0].Status)
	assert.Empty(t, out.Body.Results[0].EventID)
}

func TestIngestEvents_UnknownProject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.ingest.IngestEvents(context.Background(), &IngestEventsInput{
		ProjectID: models.NewULID().String(),
		Body:      []EventSubmission{{Type: models.EventTypeError}},
	})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestIngestEvents_BadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingest.IngestEvents(ctx, &IngestEventsInput{ProjectID: "not-a-ulid", Body: []EventSubmission{{Type: "error"}}})
	assert.Equal(t, 422, statusOf(t, err))

	_, err = env.ingest.IngestEvents(ctx, &IngestEventsInput{ProjectID: env.project.ID.String()})
	assert.Equal(t, 400, statusOf(t, err))

	env.ingest.WithMaxBatchSize(1)
	_, err = env.ingest.IngestEvents(ctx, &IngestEventsInput{
		ProjectID: env.project.ID.String(),
		Body:      []EventSubmission{{Type: "error"}, {Type: "error"}},
	})
	assert.Equal(t, 413, statusOf(t, err))
}

func ingestOne(t *testing.T, env *testEnv, message string) models.ULID {
	t.Helper()
	out, err := env.ingest.IngestEvents(context.Background(), &IngestEventsInput{
		ProjectID: env.project.ID.String(),
		Body:      []EventSubmission{{Type: models.EventTypeError, Source: "MyApp", Message: message}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Body.Accepted)
	return models.MustParseULID(out.Body.Results[0].StackID)
}

func TestGetStack(t *testing.T) {
	env := newTestEnv(t)
	log := slog.New(slog.DiscardHandler)
	h := NewStacksHandler(log, env.stacks, env.events)

	stackID := ingestOne(t, env, "boom")

	out, err := h.GetStack(context.Background(), &GetStackInput{ID: stackID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Body.TotalOccurrences)
	assert.Equal(t, models.StackStatusOpen, out.Body.Status)

	_, err = h.GetStack(context.Background(), &GetStackInput{ID: models.NewULID().String()})
	assert.Equal(t, 404, statusOf(t, err))

	_, err = h.GetStack(context.Background(), &GetStackInput{ID: "nope"})
	assert.Equal(t, 422, statusOf(t, err))
}

func TestMarkStackFixed(t *testing.T) {
	env := newTestEnv(t)
	log := slog.New(slog.DiscardHandler)
	h := NewStacksHandler(log, env.stacks, env.events)

	stackID := ingestOne(t, env, "boom")

	input := &MarkStackFixedInput{ID: stackID.String()}
	input.Body.Version = "1.2.3"
	out, err := h.MarkFixed(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, models.StackStatusFixed, out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.FixedInVersion)
	require.NotNil(t, out.Body.DateFixed)

	bad := &MarkStackFixedInput{ID: stackID.String()}
	bad.Body.Version = "not.a.version"
	_, err = h.MarkFixed(context.Background(), bad)
	assert.Equal(t, 422, statusOf(t, err))
}

func TestMarkStackFixed_TriggersRegressionOnNewerVersion(t *testing.T) {
	env := newTestEnv(t)
	log := slog.New(slog.DiscardHandler)
	h := NewStacksHandler(log, env.stacks, env.events)

	stackID := ingestOne(t, env, "boom")

	input := &MarkStackFixedInput{ID: stackID.String()}
	input.Body.Version = "1.0.0"
	_, err := h.MarkFixed(context.Background(), input)
	require.NoError(t, err)

	out, err := env.ingest.IngestEvents(context.Background(), &IngestEventsInput{
		ProjectID: env.project.ID.String(),
		Body: []EventSubmission{{
			Type: models.EventTypeError, Source: "MyApp", Message: "boom",
			Data: map[string]string{models.DataKeyVersion: "1.1.0"},
		}},
	})
	require.NoError(t, err)
	assert.True(t, out.Body.Results[0].IsRegression)

	got, err := h.GetStack(context.Background(), &GetStackInput{ID: stackID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.StackStatusRegressed, got.Body.Status)
}

func TestListStackEvents(t *testing.T) {
	env := newTestEnv(t)
	log := slog.New(slog.DiscardHandler)
	h := NewStacksHandler(log, env.stacks, env.events)

	stackID := ingestOne(t, env, "boom")
	ingestOne(t, env, "boom")

	out, err := h.ListEvents(context.Background(), &ListStackEventsInput{ID: stackID.String(), Limit: 10})
	require.NoError(t, err)
	assert.Len(t, out.Body, 2)

	out, err = h.ListEvents(context.Background(), &ListStackEventsInput{ID: stackID.String(), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, out.Body, 1)
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t)
	h := NewHealthHandler("1.0.0-test").WithDB(env.db)

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.0.0-test", out.Body.Version)
	assert.Equal(t, "ok", out.Body.Database.Status)
	assert.Positive(t, out.Body.CPU.Cores)
}
