package persist

import (
	"context"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/faultlinehq/faultline/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newStage(t *testing.T) (*Stage, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Event{}))

	return New(repository.NewEventRepository(db)), db
}

func newContext() *core.EventContext {
	return core.NewEventContext(&models.Event{
		OrganizationID: models.NewULID(),
		ProjectID:      models.NewULID(),
		StackID:        models.NewULID(),
		Type:           models.EventTypeError,
		Date:           time.Now().UTC(),
	})
}

func TestStage_PersistsSurvivingEvents(t *testing.T) {
	stage, db := newStage(t)

	kept := newContext()
	cancelled := newContext()
	cancelled.MarkCancelled()

	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{kept, cancelled}))

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.False(t, kept.Event.ID.IsZero())
}

func TestStage_EmptyBatchIsNoop(t *testing.T) {
	stage, db := newStage(t)

	cancelled := newContext()
	cancelled.MarkCancelled()
	require.NoError(t, stage.ProcessBatch(context.Background(), []*core.EventContext{cancelled}))

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	assert.Zero(t, count)
}
