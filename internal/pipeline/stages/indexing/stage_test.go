package indexing

import (
	"context"
	"testing"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/pipeline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(premium bool, data models.DataMap) *core.EventContext {
	ectx := core.NewEventContext(&models.Event{Type: models.EventTypeError, Data: data})
	ectx.Organization = &models.Organization{Name: "Acme", HasPremiumFeatures: premium}
	return ectx
}

func TestStage_ProjectsDataWithTypeSuffixes(t *testing.T) {
	stage := New()
	ectx := newContext(true, models.DataMap{
		"Browser":  "Firefox",
		"Attempts": "3",
		"Latency":  "12.5",
	})

	require.NoError(t, stage.ProcessEvent(context.Background(), ectx))
	assert.Equal(t, models.DataMap{
		"browser-s":  "Firefox",
		"attempts-n": "3",
		"latency-n":  "12.5",
	}, ectx.Event.Idx)
}

func TestStage_SkipsReservedKeys(t *testing.T) {
	stage := New()
	ectx := newContext(true, models.DataMap{
		models.DataKeyVersion: "1.2.3",
		"browser":             "Firefox",
	})

	require.NoError(t, stage.ProcessEvent(context.Background(), ectx))
	assert.Equal(t, models.DataMap{"browser-s": "Firefox"}, ectx.Event.Idx)
}

func TestStage_NonPremiumOrganizationSkipped(t *testing.T) {
	stage := New()
	ectx := newContext(false, models.DataMap{"browser": "Firefox"})

	require.NoError(t, stage.ProcessEvent(context.Background(), ectx))
	assert.Nil(t, ectx.Event.Idx)
}
