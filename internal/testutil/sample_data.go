// Package testutil provides test utilities including sample data generation.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// Standard fictional application names for test data.
// NEVER use real product or company names.
var (
	Applications = []string{
		"Checkout",
		"Billing",
		"Ledger",
		"Notifier",
		"Gateway",
		"Importer",
		"Scheduler",
		"Reporting",
	}

	Sources = []string{
		"MyApp.Web.Controllers.OrderController",
		"MyApp.Core.Services.PaymentService",
		"MyApp.Core.Repositories.CustomerRepository",
		"MyApp.Jobs.NightlyExportJob",
		"MyApp.Integrations.MailGateway",
		"MyApp.Web.Middleware.AuthMiddleware",
	}

	ErrorMessages = []string{
		"Object reference not set to an instance of an object",
		"Connection refused by remote host",
		"Timeout expired waiting for connection from pool",
		"Index was outside the bounds of the array",
		"Invalid cast from 'String' to 'Int32'",
		"The operation was canceled",
	}

	LogMessages = []string{
		"Order submitted",
		"Payment authorized",
		"Export completed",
		"Cache refreshed",
		"Configuration reloaded",
	}

	Versions = []string{
		"1.0.0",
		"1.1.0",
		"1.2.3",
		"2.0.0-beta.1",
		"2.0.0",
	}
)

// Generator produces deterministic sample telemetry data for tests.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator with the given seed. The same seed always
// produces the same sequence of sample data.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

// Organization returns a sample organization.
func (g *Generator) Organization() *models.Organization {
	return &models.Organization{
		Name:          fmt.Sprintf("Org %04d", g.rng.Intn(10000)),
		RetentionDays: 30,
	}
}

// Project returns a sample project belonging to the given organization.
func (g *Generator) Project(orgID models.ULID) *models.Project {
	return &models.Project{
		OrganizationID: orgID,
		Name:           g.pick(Applications),
	}
}

// ErrorEvent returns a sample error event for the given project.
func (g *Generator) ErrorEvent(projectID models.ULID) *models.Event {
	return &models.Event{
		ProjectID: projectID,
		Type:      models.EventTypeError,
		Source:    g.pick(Sources),
		Message:   g.pick(ErrorMessages),
		Date:      time.Now().UTC().Add(-time.Duration(g.rng.Intn(3600)) * time.Second),
		Data: models.DataMap{
			models.DataKeyVersion: g.pick(Versions),
		},
	}
}

// LogEvent returns a sample log event for the given project.
func (g *Generator) LogEvent(projectID models.ULID) *models.Event {
	return &models.Event{
		ProjectID: projectID,
		Type:      models.EventTypeLog,
		Source:    g.pick(Sources),
		Message:   g.pick(LogMessages),
		Date:      time.Now().UTC().Add(-time.Duration(g.rng.Intn(3600)) * time.Second),
		Data: models.DataMap{
			models.DataKeyLevel: g.pick([]string{"debug", "info", "warn", "error"}),
		},
	}
}

// EventBatch returns n error events that share a source and message, so they
// deduplicate into a single stack.
func (g *Generator) EventBatch(projectID models.ULID, n int) []*models.Event {
	source := g.pick(Sources)
	message := g.pick(ErrorMessages)
	events := make([]*models.Event, n)
	for i := range events {
		events[i] = &models.Event{
			ProjectID: projectID,
			Type:      models.EventTypeError,
			Source:    source,
			Message:   message,
			Date:      time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		}
	}
	return events
}
