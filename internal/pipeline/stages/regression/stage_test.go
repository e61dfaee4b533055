package regression

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStage(t *testing.T) (*Stage, repository.StackRepository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Stack{}))

	stacks := repository.NewStackRepository(db, cache.NewMemory(time.Minute))
	return New(slog.New(slog.DiscardHandler), stacks), stacks, db
}

func fixedStack(t *testing.T, stacks repository.StackRepository, fixedAt time.Time, fixedInVersion string) *models.Stack {
	t.Helper()
	stack := &models.Stack{
		OrganizationID:  models.NewULID(),
		ProjectID:       models.NewULID(),
		SignatureHash:   "cafe",
		Title:           "boom",
		Type:            models.EventTypeError,
		Status:          models.StackStatusFixed,
		DateFixed:       &fixedAt,
		FixedInVersion:  fixedInVersion,
		FirstOccurrence: fixedAt.Add(-time.Hour),
		LastOccurrence:  fixedAt.Add(-time.Hour),
	}
	require.NoError(t, stacks.Create(context.Background(), stack))
	return stack
}

func contextOn(stack *models.Stack, date time.Time, version string) *core.EventContext {
	event := &models.Event{
		OrganizationID: stack.OrganizationID,
		ProjectID:      stack.ProjectID,
		Type:           models.EventTypeError,
		Date:           date,
	}
	if version != "" {
		event.SetDataValue(models.DataKeyVersion, version)
	}
	ectx := core.NewEventContext(event)
	ectx.Stack = stack
	return ectx
}

func TestStage_DateRegression_FlagsOnlyFirstEventAfterFix(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "")

	before := contextOn(stack, fixedAt.Add(-time.Hour), "")
	first := contextOn(stack, fixedAt.Add(time.Hour), "")
	second := contextOn(stack, fixedAt.Add(2*time.Hour), "")

	// Deliberately out of order; the stage sorts by event date.
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{second, before, first}))

	assert.False(t, before.IsRegression)
	assert.True(t, first.IsRegression)
	assert.False(t, second.IsRegression)
	assert.Equal(t, models.StackStatusRegressed, stack.Status)

	got, err := stacks.GetByID(context.Background(), stack.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StackStatusRegressed, got.Status)
}

func TestStage_NoEventAfterFixNoRegression(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "")

	ectx := contextOn(stack, fixedAt.Add(-time.Hour), "")
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{ectx}))

	assert.False(t, ectx.IsRegression)
	assert.Equal(t, models.StackStatusFixed, stack.Status)
}

func TestStage_VersionRegression(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "2.0.0")

	older := contextOn(stack, fixedAt.Add(time.Hour), "1.9.0")
	atFix := contextOn(stack, fixedAt.Add(2*time.Hour), "2.0.0")

	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{older, atFix}))

	assert.False(t, older.IsRegression)
	assert.True(t, atFix.IsRegression)
	assert.Equal(t, models.StackStatusRegressed, stack.Status)
}

func TestStage_VersionBelowFixDoesNotRegress(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "2.0.0")

	ectx := contextOn(stack, fixedAt.Add(time.Hour), "1.9.0")
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{ectx}))

	assert.False(t, ectx.IsRegression)
	assert.Equal(t, models.StackStatusFixed, stack.Status)
}

func TestStage_GarbageVersionFallsBackToZero(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "2.0.0")

	// "not-a-version" parses as 0.0.0, which is below the fix version.
	ectx := contextOn(stack, fixedAt.Add(time.Hour), "not-a-version")
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{ectx}))
	assert.False(t, ectx.IsRegression)
}

func TestStage_AlreadyRegressedStackSkipped(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "")
	stack.Status = models.StackStatusRegressed

	ectx := contextOn(stack, fixedAt.Add(time.Hour), "")
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{ectx}))
	assert.False(t, ectx.IsRegression)
}

func TestStage_NewStacksNeverEvaluated(t *testing.T) {
	stage, stacks, _ := newStage(t)
	fixedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	stack := fixedStack(t, stacks, fixedAt, "")

	ectx := contextOn(stack, fixedAt.Add(time.Hour), "")
	ectx.IsNew = true
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{ectx}))
	assert.False(t, ectx.IsRegression)
}
